package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
)

var (
	ErrBatchNotFound     = errors.New("batch not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInsufficientUnits = errors.New("insufficient units in batch")
)

// Ledger is the aggregate "units available per hospital per blood
// group" counter. Every mutation is a single atomic statement; callers
// never read-modify-write.
type Ledger interface {
	Get(ctx context.Context, hospitalID uuid.UUID) (map[blood.Group]int, error)

	Increment(ctx context.Context, hospitalID uuid.UUID, group blood.Group, delta int) error
	Decrement(ctx context.Context, hospitalID uuid.UUID, group blood.Group, delta int) error

	// Reserve is an atomic check-and-decrement: it fails with
	// ErrInsufficientStock without touching the counter when fewer
	// than units are available.
	Reserve(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int) error
}

// BatchStore owns the physical batch records, the source of truth the
// ledger is derived from.
type BatchStore interface {
	CreateBatch(ctx context.Context, b Batch) (*Batch, error)
	GetBatchByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	ListBatches(ctx context.Context, hospitalID uuid.UUID) ([]Batch, error)

	// ConsumeFIFO drains batches oldest collectedDate first, each
	// step a conditional per-batch decrement, and returns the units
	// actually consumed (possibly fewer than requested).
	ConsumeFIFO(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int) (int, error)

	// UseUnits deducts from one specific batch, verifying ownership
	// and remaining units in the same atomic statement. Returns the
	// batch's remaining units and its blood group.
	UseUnits(ctx context.Context, batchID, hospitalID uuid.UUID, quantity int) (int, blood.Group, error)

	// ReapExpired zeroes every still-stocked batch past its expiry
	// and reports the units reclaimed per blood group. Idempotent.
	ReapExpired(ctx context.Context, hospitalID uuid.UUID, now time.Time) (map[blood.Group]int, error)

	// HospitalsWithExpiredStock lists hospitals the periodic sweep
	// should reap.
	HospitalsWithExpiredStock(ctx context.Context, now time.Time) ([]uuid.UUID, error)

	CollectedUnits(ctx context.Context, hospitalID uuid.UUID) (int, error)
	ExpiringSoonCount(ctx context.Context, hospitalID uuid.UUID, from, until time.Time) (int, error)
}
