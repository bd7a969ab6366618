package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
)

// memStore implements Ledger and BatchStore in memory with the same
// conditional semantics as the Postgres store.
type memStore struct {
	mu      sync.Mutex
	counts  map[uuid.UUID]map[blood.Group]int
	batches map[uuid.UUID]*Batch
}

func newMemStore() *memStore {
	return &memStore{
		counts:  make(map[uuid.UUID]map[blood.Group]int),
		batches: make(map[uuid.UUID]*Batch),
	}
}

func (m *memStore) Get(_ context.Context, hospitalID uuid.UUID) (map[blood.Group]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[blood.Group]int)
	for g, n := range m.counts[hospitalID] {
		out[g] = n
	}
	return out, nil
}

func (m *memStore) Increment(_ context.Context, hospitalID uuid.UUID, group blood.Group, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(hospitalID, group, delta)
	return nil
}

func (m *memStore) Decrement(_ context.Context, hospitalID uuid.UUID, group blood.Group, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.add(hospitalID, group, -delta)
	return nil
}

func (m *memStore) Reserve(_ context.Context, hospitalID uuid.UUID, group blood.Group, units int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[hospitalID][group] < units {
		return ErrInsufficientStock
	}
	m.add(hospitalID, group, -units)
	return nil
}

func (m *memStore) add(hospitalID uuid.UUID, group blood.Group, delta int) {
	if m.counts[hospitalID] == nil {
		m.counts[hospitalID] = make(map[blood.Group]int)
	}
	m.counts[hospitalID][group] += delta
}

func (m *memStore) CreateBatch(_ context.Context, b Batch) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BatchActive
	}
	cp := b
	m.batches[b.ID] = &cp
	out := b
	return &out, nil
}

func (m *memStore) GetBatchByID(_ context.Context, id uuid.UUID) (*Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBatches(_ context.Context, hospitalID uuid.UUID) ([]Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Batch
	for _, b := range m.batches {
		if b.HospitalID == hospitalID {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollectedDate.Before(out[j].CollectedDate)
	})
	return out, nil
}

func (m *memStore) ConsumeFIFO(_ context.Context, hospitalID uuid.UUID, group blood.Group, units int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []*Batch
	for _, b := range m.batches {
		if b.HospitalID == hospitalID && b.BloodGroup == group && b.Units > 0 && b.Status == BatchActive {
			candidates = append(candidates, b)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CollectedDate.Before(candidates[j].CollectedDate)
	})

	consumed := 0
	for _, b := range candidates {
		if consumed >= units {
			break
		}
		take := units - consumed
		if take > b.Units {
			take = b.Units
		}
		b.Units -= take
		if b.Units == 0 {
			b.Status = BatchDepleted
		}
		consumed += take
	}
	return consumed, nil
}

func (m *memStore) UseUnits(_ context.Context, batchID, hospitalID uuid.UUID, quantity int) (int, blood.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok || b.HospitalID != hospitalID {
		return 0, "", ErrBatchNotFound
	}
	if b.Units < quantity {
		return 0, "", ErrInsufficientUnits
	}
	b.Units -= quantity
	if b.Units == 0 {
		b.Status = BatchDepleted
	}
	return b.Units, b.BloodGroup, nil
}

func (m *memStore) ReapExpired(_ context.Context, hospitalID uuid.UUID, now time.Time) (map[blood.Group]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reclaimed := make(map[blood.Group]int)
	for _, b := range m.batches {
		if b.HospitalID != hospitalID || b.Units <= 0 || !b.ExpiryDate.Before(now) {
			continue
		}
		reclaimed[b.BloodGroup] += b.Units
		b.Units = 0
		b.Status = BatchExpired
	}
	return reclaimed, nil
}

func (m *memStore) HospitalsWithExpiredStock(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, b := range m.batches {
		if b.Units > 0 && b.ExpiryDate.Before(now) && !seen[b.HospitalID] {
			seen[b.HospitalID] = true
			out = append(out, b.HospitalID)
		}
	}
	return out, nil
}

func (m *memStore) CollectedUnits(_ context.Context, hospitalID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, b := range m.batches {
		if b.HospitalID == hospitalID {
			total += b.Units
		}
	}
	return total, nil
}

func (m *memStore) ExpiringSoonCount(_ context.Context, hospitalID uuid.UUID, from, until time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.batches {
		if b.HospitalID == hospitalID && b.Units > 0 &&
			b.ExpiryDate.After(from) && b.ExpiryDate.Before(until) {
			count++
		}
	}
	return count, nil
}
