package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redcell/bloodlink/internal/config"
	"github.com/redcell/bloodlink/internal/db"
)

// The simulator hammers the accept endpoint to demonstrate the
// single-winner guarantee: each round creates one stock-transfer
// request and fires N concurrent accepts from different hospitals.
// Exactly one accept per round should return 200; the rest 409.

type SimConfig struct {
	APIBaseURL  string
	Rounds      int
	Acceptors   int
	Units       int
	PostgresDSN string
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.latencies))
	copy(latencies, om.latencies)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg = sum / time.Duration(len(latencies))
	p50 = latencies[len(latencies)*50/100]
	p95Idx := len(latencies) * 95 / 100
	if p95Idx >= len(latencies) {
		p95Idx = len(latencies) - 1
	}
	p95 = latencies[p95Idx]
	return avg, p50, p95
}

type Simulator struct {
	config    SimConfig
	hospitals []uuid.UUID
	client    *http.Client

	createMetrics OperationMetrics
	acceptMetrics OperationMetrics

	multiWinnerRounds int64
	zeroWinnerRounds  int64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadSimConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	hospitals, err := loadHospitals(ctx, pgPool)
	if err != nil {
		log.Fatalf("load hospitals: %v", err)
	}
	if len(hospitals) < 2 {
		log.Fatalf("need at least 2 hospitals, got %d (run the seed tool first)", len(hospitals))
	}
	log.Printf("loaded %d hospitals", len(hospitals))

	sim := &Simulator{
		config:    cfg,
		hospitals: hospitals,
		client:    &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()
}

func loadSimConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	return SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Rounds:      getInt("SIM_ROUNDS", 50),
		Acceptors:   getInt("SIM_ACCEPTORS", 8),
		Units:       getInt("SIM_UNITS", 2),
		PostgresDSN: baseCfg.PostgresDSN,
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func loadHospitals(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `SELECT id FROM users WHERE role = 'hospital'`)
	if err != nil {
		return nil, fmt.Errorf("query hospitals: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Simulator) Run() {
	log.Printf("running %d rounds with %d concurrent acceptors each", s.config.Rounds, s.config.Acceptors)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for round := 0; round < s.config.Rounds; round++ {
		requester := s.hospitals[rng.Intn(len(s.hospitals))]

		requestID, ok := s.createRequest(requester)
		if !ok {
			continue
		}

		winners := s.raceAccepts(requestID, requester)
		if winners > 1 {
			atomic.AddInt64(&s.multiWinnerRounds, 1)
			log.Printf("VIOLATION: round %d had %d winners for request %s", round, winners, requestID)
		}
		if winners == 0 {
			atomic.AddInt64(&s.zeroWinnerRounds, 1)
		}
	}
}

func (s *Simulator) createRequest(requester uuid.UUID) (uuid.UUID, bool) {
	start := time.Now()

	body, _ := json.Marshal(map[string]any{
		"requester_id": requester.String(),
		"blood_group":  "O+",
		"units":        s.config.Units,
		"type":         "emergency_broadcast",
	})

	resp, err := s.client.Post(s.config.APIBaseURL+"/requests", "application/json", bytes.NewReader(body))
	latency := time.Since(start)
	if err != nil {
		s.createMetrics.Record(latency, false, false)
		return uuid.Nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		s.createMetrics.Record(latency, false, resp.StatusCode == http.StatusConflict)
		return uuid.Nil, false
	}

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &created)

	s.createMetrics.Record(latency, created.ID != uuid.Nil, false)
	return created.ID, created.ID != uuid.Nil
}

// raceAccepts fires the configured number of concurrent accepts at one
// request and returns how many got a 200.
func (s *Simulator) raceAccepts(requestID, requester uuid.UUID) int {
	var wg sync.WaitGroup
	var winners int64

	for i := 0; i < s.config.Acceptors; i++ {
		actor := s.hospitals[i%len(s.hospitals)]
		if actor == requester {
			actor = s.hospitals[(i+1)%len(s.hospitals)]
		}

		wg.Add(1)
		go func(actorID uuid.UUID) {
			defer wg.Done()

			start := time.Now()
			body, _ := json.Marshal(map[string]string{"actor_id": actorID.String()})
			resp, err := s.client.Post(
				fmt.Sprintf("%s/requests/%s/accept", s.config.APIBaseURL, requestID),
				"application/json", bytes.NewReader(body))
			latency := time.Since(start)
			if err != nil {
				s.acceptMetrics.Record(latency, false, false)
				return
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch resp.StatusCode {
			case http.StatusOK:
				atomic.AddInt64(&winners, 1)
				s.acceptMetrics.Record(latency, true, false)
			case http.StatusConflict:
				s.acceptMetrics.Record(latency, false, true)
			default:
				s.acceptMetrics.Record(latency, false, false)
			}
		}(actor)
	}

	wg.Wait()
	return int(atomic.LoadInt64(&winners))
}

func (s *Simulator) PrintReport() {
	fmt.Println()
	fmt.Println("=== simulation report ===")

	printOp := func(name string, m *OperationMetrics) {
		avg, p50, p95 := m.Stats()
		fmt.Printf("%-8s total=%d success=%d conflict=%d error=%d avg=%s p50=%s p95=%s\n",
			name, m.Total, m.Success, m.Conflict, m.Error, avg, p50, p95)
	}
	printOp("create", &s.createMetrics)
	printOp("accept", &s.acceptMetrics)

	fmt.Printf("rounds with multiple winners: %d\n", s.multiWinnerRounds)
	fmt.Printf("rounds with zero winners:     %d\n", s.zeroWinnerRounds)
	if s.multiWinnerRounds == 0 {
		fmt.Println("single-winner guarantee held for every round")
	}
}
