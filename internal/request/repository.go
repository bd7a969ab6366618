package request

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound   = errors.New("request not found")
	ErrAlreadyAccepted   = errors.New("request already accepted by another actor")
	ErrRequestExpired    = errors.New("request has expired")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository contains all DB interactions needed by the service. Every
// transition method is a single conditional write: it updates the row
// only when the stored state still satisfies the method's precondition
// and reports ErrRequestNotFound when no row matched, letting the
// service re-read and classify the conflict. There is never a
// read-then-write pair around a transition.
type Repository interface {
	Insert(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)

	// ClaimAccept atomically sets acceptedBy if and only if it is
	// currently unset and the request is still active. For broadcast
	// requests the claim also fixes the giver.
	ClaimAccept(ctx context.Context, id, actorID uuid.UUID, at time.Time) (*Request, error)

	// CompleteFrom moves from → completed and stamps completedAt.
	CompleteFrom(ctx context.Context, id uuid.UUID, from Status, at time.Time) (*Request, error)

	// CancelFrom moves from → cancelled and records the reason.
	CancelFrom(ctx context.Context, id uuid.UUID, from Status, reason string, at time.Time) (*Request, error)

	// MarkDispatched moves accepted → dispatched with transport details.
	MarkDispatched(ctx context.Context, id uuid.UUID, d DispatchDetails) (*Request, error)

	// ExpireIfActive moves active → expired; a no-op (ErrRequestNotFound)
	// when the request was claimed in the meantime.
	ExpireIfActive(ctx context.Context, id uuid.UUID) (*Request, error)

	AddIgnore(ctx context.Context, id, userID uuid.UUID) error

	ListActive(ctx context.Context) ([]Request, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Request, error)
	FindExpiredActive(ctx context.Context, now time.Time) ([]Request, error)

	// FulfilledUnits sums the units of completed requests the given
	// hospital gave stock for, for the dispatch report.
	FulfilledUnits(ctx context.Context, hospitalID uuid.UUID) (int, error)
}
