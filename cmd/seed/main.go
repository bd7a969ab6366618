package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redcell/bloodlink/internal/blood"
	"github.com/redcell/bloodlink/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	hospitals, err := seedHospitals(context.Background(), pool, 20)
	if err != nil {
		log.Fatalf("seed hospitals: %v", err)
	}
	if err := seedDonors(context.Background(), pool, 500); err != nil {
		log.Fatalf("seed donors: %v", err)
	}
	if err := seedBatches(context.Background(), pool, hospitals); err != nil {
		log.Fatalf("seed batches: %v", err)
	}

	log.Println("seed complete")
}

var cities = []string{
	"Mumbai", "Delhi", "Bengaluru", "Chennai", "Kolkata",
	"Hyderabad", "Pune", "Ahmedabad", "Jaipur", "Lucknow",
}

func randomGroup() blood.Group {
	return blood.AllGroups[gofakeit.Number(0, len(blood.AllGroups)-1)]
}

func seedHospitals(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d hospitals", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Hospital"
		city := cities[gofakeit.Number(0, len(cities)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, role, name, email, city, created_at, updated_at)
			VALUES ($1, 'hospital', $2, $3, $4, now(), now())
		`, id, name, gofakeit.Email(), city)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

func seedDonors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d donors", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		group := randomGroup()
		city := cities[gofakeit.Number(0, len(cities)-1)]

		// Roughly a third of donors have donated recently, so some
		// are inside the cooling period and some just past it.
		var lastDonation *time.Time
		if gofakeit.Number(0, 2) == 0 {
			t := time.Now().AddDate(0, 0, -gofakeit.Number(1, 180))
			lastDonation = &t
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, role, name, email, blood_group, city, last_donation_date, created_at, updated_at)
			VALUES ($1, 'donor', $2, $3, $4, $5, $6, now(), now())
		`, id, gofakeit.Name(), gofakeit.Email(), string(group), city, lastDonation)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedBatches(ctx context.Context, pool *pgxpool.Pool, hospitals []uuid.UUID) error {
	log.Printf("seeding batches for %d hospitals", len(hospitals))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, hospitalID := range hospitals {
		for _, group := range blood.AllGroups {
			batches := gofakeit.Number(0, 3)
			total := 0
			for b := 0; b < batches; b++ {
				units := gofakeit.Number(1, 8)
				collected := time.Now().AddDate(0, 0, -gofakeit.Number(0, 30))
				expiry := collected.AddDate(0, 0, 35)

				_, err := tx.Exec(ctx, `
					INSERT INTO blood_batches (id, hospital_id, blood_group, units, collected_date, expiry_date, source_type, source_name, status)
					VALUES ($1, $2, $3, $4, $5, $6, 'donation', $7, 'active')
				`, uuid.New(), hospitalID, string(group), units, collected, expiry, gofakeit.Name())
				if err != nil {
					return err
				}
				total += units
			}

			if total > 0 {
				_, err := tx.Exec(ctx, `
					INSERT INTO inventory_aggregate (hospital_id, blood_group, units, updated_at)
					VALUES ($1, $2, $3, now())
					ON CONFLICT (hospital_id, blood_group)
					DO UPDATE SET units = inventory_aggregate.units + EXCLUDED.units, updated_at = now()
				`, hospitalID, string(group), total)
				if err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit(ctx)
}
