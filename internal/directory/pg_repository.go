package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/redcell/bloodlink/internal/blood"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanUser(row pgx.Row) (*User, error) {
	var (
		u          User
		email      *string
		bloodGroup *string
	)

	err := row.Scan(
		&u.ID,
		&u.Role,
		&u.Name,
		&email,
		&bloodGroup,
		&u.City,
		&u.FCMToken,
		&u.LastDonationDate,
		&u.DonationCount,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Email = email
	if bloodGroup != nil {
		g := blood.Group(*bloodGroup)
		u.BloodGroup = &g
	}
	return &u, nil
}

const userColumns = `id, role, name, email, blood_group, city, fcm_token, last_donation_date, donation_count, created_at, updated_at`

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) FindDonors(ctx context.Context, groups []blood.Group, cities []string, exclude uuid.UUID) ([]User, error) {
	groupStrs := make([]string, len(groups))
	for i, g := range groups {
		groupStrs[i] = string(g)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'donor'
		  AND blood_group = ANY($1)
		  AND (cardinality($2::text[]) = 0 OR city = ANY($2))
		  AND id <> $3
	`, groupStrs, cities, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) RecordDonation(ctx context.Context, rec DonationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO donation_history (id, donor_id, hospital_id, blood_group, units, request_id, donated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.DonorID, rec.HospitalID, string(rec.BloodGroup), rec.Units, rec.RequestID, rec.DonatedAt)
	if err != nil {
		return fmt.Errorf("insert donation record: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET last_donation_date = $2,
		    donation_count = donation_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, rec.DonorID, rec.DonatedAt)
	if err != nil {
		return fmt.Errorf("update donor profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}
