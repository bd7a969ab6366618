package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redcell/bloodlink/internal/blood"
	"github.com/redcell/bloodlink/internal/clock"
)

// DefaultShelfLife is the standard whole-blood shelf life applied to
// batches created by completed requests and refunds.
const DefaultShelfLife = 35 * 24 * time.Hour

const expiringSoonWindow = 7 * 24 * time.Hour

// Service keeps the aggregate ledger and the batch records moving in
// lockstep: every aggregate mutation has a matching batch-level
// mutation, aggregate first, batches second. A shortfall in the second
// step means the two views have drifted; it is logged loudly and never
// hidden, but it does not abort the committed operation.
type Service struct {
	ledger     Ledger
	batches    BatchStore
	clock      clock.Clock
	log        *zap.Logger
	thresholds Thresholds
	shelfLife  time.Duration
}

func NewService(ledger Ledger, batches BatchStore, clk clock.Clock, log *zap.Logger, opts ...Option) *Service {
	svc := &Service{
		ledger:     ledger,
		batches:    batches,
		clock:      clk,
		log:        log,
		thresholds: DefaultThresholds,
		shelfLife:  DefaultShelfLife,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type Option func(*Service)

func WithThresholds(t Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

func WithShelfLife(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.shelfLife = d
		}
	}
}

// GetInventory returns the hospital's per-group stock view. Expired
// batches are reaped first so the figures never include spoiled stock.
// Transient negative counters (from manual overrides) display as zero.
func (s *Service) GetInventory(ctx context.Context, hospitalID uuid.UUID) ([]Item, error) {
	if err := s.Reap(ctx, hospitalID); err != nil {
		return nil, err
	}

	counts, err := s.ledger.Get(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("read aggregate: %w", err)
	}

	items := make([]Item, 0, len(blood.AllGroups))
	for _, g := range blood.AllGroups {
		units := counts[g]
		if units < 0 {
			units = 0
		}
		items = append(items, Item{
			BloodGroup: g,
			Units:      units,
			Status:     s.thresholds.Classify(units),
		})
	}
	return items, nil
}

// Reap retires the hospital's expired batches and deducts the reclaimed
// units from the aggregate. Safe to run repeatedly.
func (s *Service) Reap(ctx context.Context, hospitalID uuid.UUID) error {
	reclaimed, err := s.batches.ReapExpired(ctx, hospitalID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("reap expired: %w", err)
	}

	for g, units := range reclaimed {
		if err := s.ledger.Decrement(ctx, hospitalID, g, units); err != nil {
			return fmt.Errorf("decrement aggregate after reap: %w", err)
		}
		s.log.Info("expired batches retired",
			zap.String("hospital_id", hospitalID.String()),
			zap.String("blood_group", string(g)),
			zap.Int("units", units))
	}
	return nil
}

// ReapAll runs the expiry sweep for every hospital currently holding
// expired stock. Used by the periodic worker; the lazy reap on read
// remains the primary mechanism.
func (s *Service) ReapAll(ctx context.Context) error {
	hospitals, err := s.batches.HospitalsWithExpiredStock(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("list hospitals with expired stock: %w", err)
	}

	for _, id := range hospitals {
		if err := s.Reap(ctx, id); err != nil {
			s.log.Error("reap failed", zap.String("hospital_id", id.String()), zap.Error(err))
		}
	}
	return nil
}

type CreateBatchInput struct {
	HospitalID    uuid.UUID
	BloodGroup    blood.Group
	Units         int
	CollectedDate time.Time
	ExpiryDate    time.Time
	SourceType    SourceType
	SourceName    string
}

// CreateBatch records a stock-increasing event: a new batch plus the
// matching aggregate credit.
func (s *Service) CreateBatch(ctx context.Context, in CreateBatchInput) (*Batch, error) {
	if in.Units <= 0 {
		return nil, fmt.Errorf("units must be positive, got %d", in.Units)
	}

	now := s.clock.Now()
	if in.CollectedDate.IsZero() {
		in.CollectedDate = now
	}
	if in.ExpiryDate.IsZero() {
		in.ExpiryDate = in.CollectedDate.Add(s.shelfLife)
	}
	if in.SourceType == "" {
		in.SourceType = SourceDonation
	}

	batch, err := s.batches.CreateBatch(ctx, Batch{
		HospitalID:    in.HospitalID,
		BloodGroup:    in.BloodGroup,
		Units:         in.Units,
		CollectedDate: in.CollectedDate,
		ExpiryDate:    in.ExpiryDate,
		SourceType:    in.SourceType,
		SourceName:    in.SourceName,
	})
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	if err := s.ledger.Increment(ctx, in.HospitalID, in.BloodGroup, in.Units); err != nil {
		return nil, fmt.Errorf("credit aggregate: %w", err)
	}

	return batch, nil
}

type BatchAction string

const (
	ActionUse     BatchAction = "use"
	ActionDiscard BatchAction = "discard"
)

// UseBatchUnits deducts units from one specific batch for an explicit
// staff action, mirroring the deduction into the aggregate. Returns the
// batch's remaining units.
func (s *Service) UseBatchUnits(ctx context.Context, batchID, hospitalID uuid.UUID, quantity int, action BatchAction) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if action != ActionUse && action != ActionDiscard {
		return 0, fmt.Errorf("unknown batch action %q", action)
	}

	remaining, group, err := s.batches.UseUnits(ctx, batchID, hospitalID, quantity)
	if err != nil {
		return 0, err
	}

	if err := s.ledger.Decrement(ctx, hospitalID, group, quantity); err != nil {
		return remaining, fmt.Errorf("decrement aggregate: %w", err)
	}

	s.log.Info("batch units deducted",
		zap.String("batch_id", batchID.String()),
		zap.String("action", string(action)),
		zap.Int("quantity", quantity),
		zap.Int("remaining", remaining))

	return remaining, nil
}

func (s *Service) ListBatches(ctx context.Context, hospitalID uuid.UUID) ([]Batch, error) {
	return s.batches.ListBatches(ctx, hospitalID)
}

// Reserve takes units units of group out of the hospital's stock in one
// check-and-decrement, then drains the matching batches oldest first.
// An under-delivering FIFO pass means the aggregate and the batches had
// already drifted; the reservation stands and the drift is logged.
func (s *Service) Reserve(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int) error {
	if err := s.ledger.Reserve(ctx, hospitalID, group, units); err != nil {
		return err
	}

	consumed, err := s.batches.ConsumeFIFO(ctx, hospitalID, group, units)
	if err != nil {
		return fmt.Errorf("consume batches: %w", err)
	}
	if consumed < units {
		s.log.Warn("aggregate and batch stock have drifted",
			zap.String("hospital_id", hospitalID.String()),
			zap.String("blood_group", string(group)),
			zap.Int("requested", units),
			zap.Int("consumed", consumed))
	}
	return nil
}

// Refund reverses a reservation after a cancellation: the aggregate is
// credited and, because batches are never topped up, the returned units
// arrive as a fresh batch with a standard shelf life.
func (s *Service) Refund(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int, sourceName string) error {
	if err := s.ledger.Increment(ctx, hospitalID, group, units); err != nil {
		return fmt.Errorf("refund aggregate: %w", err)
	}

	now := s.clock.Now()
	_, err := s.batches.CreateBatch(ctx, Batch{
		HospitalID:    hospitalID,
		BloodGroup:    group,
		Units:         units,
		CollectedDate: now,
		ExpiryDate:    now.Add(s.shelfLife),
		SourceType:    SourceTransfer,
		SourceName:    sourceName,
	})
	if err != nil {
		return fmt.Errorf("create refund batch: %w", err)
	}
	return nil
}

// Credit adds received units to a hospital after a completed request:
// aggregate credit plus a new batch recording where the stock came from.
func (s *Service) Credit(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int, fromDonor bool, sourceName string) error {
	sourceType := SourceTransfer
	if fromDonor {
		sourceType = SourceDonation
	}

	_, err := s.CreateBatch(ctx, CreateBatchInput{
		HospitalID: hospitalID,
		BloodGroup: group,
		Units:      units,
		SourceType: sourceType,
		SourceName: sourceName,
	})
	return err
}

// Report summarizes stock movement for the hospital dashboard.
func (s *Service) Report(ctx context.Context, hospitalID uuid.UUID) (*Report, error) {
	collected, err := s.batches.CollectedUnits(ctx, hospitalID)
	if err != nil {
		return nil, fmt.Errorf("sum collected units: %w", err)
	}

	now := s.clock.Now()
	expiring, err := s.batches.ExpiringSoonCount(ctx, hospitalID, now, now.Add(expiringSoonWindow))
	if err != nil {
		return nil, fmt.Errorf("count expiring batches: %w", err)
	}

	return &Report{
		TotalUnitsCollected: collected,
		BatchesExpiringSoon: expiring,
	}, nil
}
