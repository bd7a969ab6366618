package request

import (
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
)

type Status string

const (
	StatusActive     Status = "active"
	StatusAccepted   Status = "accepted"
	StatusDispatched Status = "dispatched"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
)

// Terminal reports whether no further status mutation is permitted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusExpired
}

type Type string

const (
	// TypeEmergencyBroadcast fans out to every compatible, eligible
	// donor in the target cities; the giver is whoever accepts.
	TypeEmergencyBroadcast Type = "emergency_broadcast"
	// TypeP2P is directed at one specific provider hospital.
	TypeP2P Type = "p2p"
	// TypeStockTransfer moves stock between two hospitals.
	TypeStockTransfer Type = "stock_transfer"
)

// ReservesOnAccept reports whether accepting a request of this type
// must immediately take stock out of the acceptor's inventory. This is
// the no-double-spend guard: directed requests promise physical stock,
// so it is decremented the moment the promise is made, not at
// completion.
func (t Type) ReservesOnAccept() bool {
	return t == TypeP2P || t == TypeStockTransfer
}

// Directed reports whether the request names its provider up front.
func (t Type) Directed() bool {
	return t == TypeP2P || t == TypeStockTransfer
}

// Request is a plea for blood moving through the lifecycle
// active → accepted → (dispatched) → completed, or out via cancelled /
// expired. GiverID and ReceiverID are fixed at creation for directed
// types and at acceptance for broadcasts, so no transition ever has to
// re-derive who is giving and who is receiving.
type Request struct {
	ID          uuid.UUID
	RequesterID uuid.UUID
	TargetID    *uuid.UUID // directed types: the provider being asked
	GiverID     *uuid.UUID
	ReceiverID  uuid.UUID
	BloodGroup  blood.Group
	Units       int
	Type        Type
	Status      Status
	Cities      []string // broadcast fan-out scope
	ExpiresAt   *time.Time
	AcceptedBy  *uuid.UUID
	AcceptedAt  *time.Time
	CompletedAt *time.Time
	CancelReason string
	Dispatch    *DispatchDetails
	IgnoredBy   []uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DispatchDetails records how accepted stock is physically moving.
type DispatchDetails struct {
	Mode       string
	TrackingID string
	At         time.Time
}

// IgnoredByUser reports whether the user muted this request.
func (r *Request) IgnoredByUser(userID uuid.UUID) bool {
	for _, id := range r.IgnoredBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the request's window has closed at now.
// Requests without a window never expire.
func (r *Request) ExpiredAt(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}
