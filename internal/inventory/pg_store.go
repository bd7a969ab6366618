package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redcell/bloodlink/internal/blood"
)

// PgStore implements both Ledger and BatchStore against Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Ledger

func (s *PgStore) Get(ctx context.Context, hospitalID uuid.UUID) (map[blood.Group]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT blood_group, units
		FROM inventory_aggregate
		WHERE hospital_id = $1
	`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[blood.Group]int)
	for rows.Next() {
		var (
			group string
			units int
		)
		if err := rows.Scan(&group, &units); err != nil {
			return nil, err
		}
		result[blood.Group(group)] = units
	}

	return result, rows.Err()
}

func (s *PgStore) Increment(ctx context.Context, hospitalID uuid.UUID, group blood.Group, delta int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO inventory_aggregate (hospital_id, blood_group, units, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (hospital_id, blood_group)
		DO UPDATE SET units = inventory_aggregate.units + EXCLUDED.units,
		              updated_at = now()
	`, hospitalID, string(group), delta)
	if err != nil {
		return fmt.Errorf("increment aggregate: %w", err)
	}
	return nil
}

func (s *PgStore) Decrement(ctx context.Context, hospitalID uuid.UUID, group blood.Group, delta int) error {
	return s.Increment(ctx, hospitalID, group, -delta)
}

func (s *PgStore) Reserve(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_aggregate
		SET units = units - $3,
		    updated_at = now()
		WHERE hospital_id = $1
		  AND blood_group = $2
		  AND units >= $3
	`, hospitalID, string(group), units)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// BatchStore

func scanBatch(row pgx.Row) (*Batch, error) {
	var (
		b     Batch
		group string
	)

	err := row.Scan(
		&b.ID,
		&b.HospitalID,
		&group,
		&b.Units,
		&b.CollectedDate,
		&b.ExpiryDate,
		&b.SourceType,
		&b.SourceName,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBatchNotFound
		}
		return nil, err
	}

	b.BloodGroup = blood.Group(group)
	return &b, nil
}

const batchColumns = `id, hospital_id, blood_group, units, collected_date, expiry_date, source_type, source_name, status, created_at, updated_at`

func (s *PgStore) CreateBatch(ctx context.Context, b Batch) (*Batch, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.Status == "" {
		b.Status = BatchActive
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO blood_batches (id, hospital_id, blood_group, units, collected_date, expiry_date, source_type, source_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+batchColumns+`
	`, b.ID, b.HospitalID, string(b.BloodGroup), b.Units, b.CollectedDate, b.ExpiryDate, b.SourceType, b.SourceName, b.Status)

	return scanBatch(row)
}

func (s *PgStore) GetBatchByID(ctx context.Context, id uuid.UUID) (*Batch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM blood_batches
		WHERE id = $1
	`, id)
	return scanBatch(row)
}

func (s *PgStore) ListBatches(ctx context.Context, hospitalID uuid.UUID) ([]Batch, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+batchColumns+`
		FROM blood_batches
		WHERE hospital_id = $1 AND units > 0
		ORDER BY collected_date ASC
	`, hospitalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}

	return result, rows.Err()
}

func (s *PgStore) ConsumeFIFO(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int) (int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, units
		FROM blood_batches
		WHERE hospital_id = $1 AND blood_group = $2 AND units > 0
		ORDER BY collected_date ASC
	`, hospitalID, string(group))
	if err != nil {
		return 0, err
	}

	type candidate struct {
		id    uuid.UUID
		units int
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.units); err != nil {
			rows.Close()
			return 0, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	consumed := 0
	for _, c := range candidates {
		if consumed >= units {
			break
		}

		take := units - consumed
		if take > c.units {
			take = c.units
		}

		// Conditional per-batch decrement: a concurrent consumer may
		// have drained this batch since we listed it, in which case
		// the guard fails and we move on to the next one.
		tag, err := s.pool.Exec(ctx, `
			UPDATE blood_batches
			SET units = units - $2,
			    status = CASE WHEN units - $2 = 0 THEN 'depleted' ELSE status END,
			    updated_at = now()
			WHERE id = $1 AND units >= $2
		`, c.id, take)
		if err != nil {
			return consumed, err
		}
		if tag.RowsAffected() == 0 {
			continue
		}

		consumed += take
	}

	return consumed, nil
}

func (s *PgStore) UseUnits(ctx context.Context, batchID, hospitalID uuid.UUID, quantity int) (int, blood.Group, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE blood_batches
		SET units = units - $3,
		    status = CASE WHEN units - $3 = 0 THEN 'depleted' ELSE status END,
		    updated_at = now()
		WHERE id = $1 AND hospital_id = $2 AND units >= $3
		RETURNING units, blood_group
	`, batchID, hospitalID, quantity)

	var (
		remaining int
		group     string
	)
	if err := row.Scan(&remaining, &group); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Ownership mismatch, unknown batch, and too few units all
			// fail the same guard; disambiguate for the caller.
			if _, getErr := s.GetBatchByID(ctx, batchID); getErr != nil {
				return 0, "", getErr
			}
			return 0, "", ErrInsufficientUnits
		}
		return 0, "", err
	}

	return remaining, blood.Group(group), nil
}

func (s *PgStore) ReapExpired(ctx context.Context, hospitalID uuid.UUID, now time.Time) (map[blood.Group]int, error) {
	// Single statement so a concurrent reap cannot double-count: the
	// FOR UPDATE lock serializes reapers and a second run sees
	// units = 0. The self-join returns the pre-update unit counts.
	rows, err := s.pool.Query(ctx, `
		UPDATE blood_batches b
		SET units = 0,
		    status = 'expired',
		    updated_at = now()
		FROM (
			SELECT id, units
			FROM blood_batches
			WHERE hospital_id = $1 AND units > 0 AND expiry_date < $2
			FOR UPDATE
		) old
		WHERE b.id = old.id
		RETURNING b.blood_group, old.units
	`, hospitalID, now)
	if err != nil {
		return nil, fmt.Errorf("reap expired batches: %w", err)
	}
	defer rows.Close()

	reclaimed := make(map[blood.Group]int)
	for rows.Next() {
		var (
			group string
			units int
		)
		if err := rows.Scan(&group, &units); err != nil {
			return nil, err
		}
		reclaimed[blood.Group(group)] += units
	}

	return reclaimed, rows.Err()
}

func (s *PgStore) HospitalsWithExpiredStock(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT hospital_id
		FROM blood_batches
		WHERE units > 0 AND expiry_date < $1
	`, now)
	if err != nil {
		return nil, err
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

func (s *PgStore) CollectedUnits(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(units), 0)::int
		FROM blood_batches
		WHERE hospital_id = $1
	`, hospitalID).Scan(&total)
	return total, err
}

func (s *PgStore) ExpiringSoonCount(ctx context.Context, hospitalID uuid.UUID, from, until time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)::int
		FROM blood_batches
		WHERE hospital_id = $1
		  AND units > 0
		  AND expiry_date > $2
		  AND expiry_date < $3
	`, hospitalID, from, until).Scan(&count)
	return count, err
}
