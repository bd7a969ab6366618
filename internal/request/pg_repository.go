package request

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

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const requestColumns = `id, requester_id, target_id, giver_id, receiver_id, blood_group, units, req_type, status, cities,
	expires_at, accepted_by, accepted_at, completed_at, cancel_reason,
	dispatch_mode, dispatch_tracking, dispatched_at, ignored_by, created_at, updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var (
		r            Request
		group        string
		cancelReason *string
		dispatchMode *string
		dispatchTrk  *string
		dispatchedAt *time.Time
	)

	err := row.Scan(
		&r.ID,
		&r.RequesterID,
		&r.TargetID,
		&r.GiverID,
		&r.ReceiverID,
		&group,
		&r.Units,
		&r.Type,
		&r.Status,
		&r.Cities,
		&r.ExpiresAt,
		&r.AcceptedBy,
		&r.AcceptedAt,
		&r.CompletedAt,
		&cancelReason,
		&dispatchMode,
		&dispatchTrk,
		&dispatchedAt,
		&r.IgnoredBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	r.BloodGroup = blood.Group(group)
	if cancelReason != nil {
		r.CancelReason = *cancelReason
	}
	if dispatchMode != nil || dispatchTrk != nil {
		d := DispatchDetails{}
		if dispatchMode != nil {
			d.Mode = *dispatchMode
		}
		if dispatchTrk != nil {
			d.TrackingID = *dispatchTrk
		}
		if dispatchedAt != nil {
			d.At = *dispatchedAt
		}
		r.Dispatch = &d
	}
	return &r, nil
}

func (p *PgRepository) Insert(ctx context.Context, r *Request) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Cities == nil {
		r.Cities = []string{}
	}
	if r.IgnoredBy == nil {
		r.IgnoredBy = []uuid.UUID{}
	}

	row := p.pool.QueryRow(ctx, `
		INSERT INTO blood_requests (id, requester_id, target_id, giver_id, receiver_id, blood_group, units, req_type, status, cities, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+requestColumns+`
	`, r.ID, r.RequesterID, r.TargetID, r.GiverID, r.ReceiverID, string(r.BloodGroup), r.Units, r.Type, r.Status, r.Cities, r.ExpiresAt)

	created, err := scanRequest(row)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	*r = *created
	return nil
}

func (p *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM blood_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (p *PgRepository) ClaimAccept(ctx context.Context, id, actorID uuid.UUID, at time.Time) (*Request, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE blood_requests
		SET status = 'accepted',
		    accepted_by = $2,
		    accepted_at = $3,
		    giver_id = COALESCE(giver_id, $2),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		  AND accepted_by IS NULL
		RETURNING `+requestColumns+`
	`, id, actorID, at)
	return scanRequest(row)
}

func (p *PgRepository) CompleteFrom(ctx context.Context, id uuid.UUID, from Status, at time.Time) (*Request, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE blood_requests
		SET status = 'completed',
		    completed_at = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+requestColumns+`
	`, id, from, at)
	return scanRequest(row)
}

func (p *PgRepository) CancelFrom(ctx context.Context, id uuid.UUID, from Status, reason string, at time.Time) (*Request, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE blood_requests
		SET status = 'cancelled',
		    cancel_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+requestColumns+`
	`, id, from, reason)
	return scanRequest(row)
}

func (p *PgRepository) MarkDispatched(ctx context.Context, id uuid.UUID, d DispatchDetails) (*Request, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE blood_requests
		SET status = 'dispatched',
		    dispatch_mode = $2,
		    dispatch_tracking = $3,
		    dispatched_at = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'accepted'
		RETURNING `+requestColumns+`
	`, id, d.Mode, d.TrackingID, d.At)
	return scanRequest(row)
}

func (p *PgRepository) ExpireIfActive(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE blood_requests
		SET status = 'expired',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		RETURNING `+requestColumns+`
	`, id)
	return scanRequest(row)
}

func (p *PgRepository) AddIgnore(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE blood_requests
		SET ignored_by = array_append(ignored_by, $2),
		    updated_at = now()
		WHERE id = $1
		  AND NOT ($2 = ANY(ignored_by))
	`, id, userID)
	if err != nil {
		return fmt.Errorf("add ignore: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either already muted (fine) or unknown id.
		if _, err := p.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (p *PgRepository) queryRequests(ctx context.Context, sql string, args ...any) ([]Request, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	return result, rows.Err()
}

func (p *PgRepository) ListActive(ctx context.Context) ([]Request, error) {
	return p.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM blood_requests
		WHERE status = 'active'
		ORDER BY created_at DESC
	`)
}

func (p *PgRepository) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Request, error) {
	return p.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM blood_requests
		WHERE requester_id = $1
		ORDER BY created_at DESC
	`, requesterID)
}

func (p *PgRepository) FindExpiredActive(ctx context.Context, now time.Time) ([]Request, error) {
	return p.queryRequests(ctx, `
		SELECT `+requestColumns+`
		FROM blood_requests
		WHERE status = 'active'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
}

func (p *PgRepository) FulfilledUnits(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	var total int
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(units), 0)::int
		FROM blood_requests
		WHERE giver_id = $1
		  AND status = 'completed'
	`, hospitalID).Scan(&total)
	return total, err
}
