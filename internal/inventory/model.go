package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
)

type BatchStatus string

const (
	BatchActive   BatchStatus = "active"
	BatchDepleted BatchStatus = "depleted"
	BatchExpired  BatchStatus = "expired"
)

type SourceType string

const (
	SourceDonation SourceType = "donation"
	SourceTransfer SourceType = "transfer"
)

// Batch is one physical lot of blood: a single collection or transfer
// event with its own expiry. Units only go down after creation; a
// correction is a new batch, never a top-up. Batches are kept at zero
// units for audit instead of being deleted.
type Batch struct {
	ID            uuid.UUID
	HospitalID    uuid.UUID
	BloodGroup    blood.Group
	Units         int
	CollectedDate time.Time
	ExpiryDate    time.Time
	SourceType    SourceType
	SourceName    string
	Status        BatchStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type StockStatus string

const (
	StockCritical StockStatus = "Critical"
	StockLow      StockStatus = "Low"
	StockGood     StockStatus = "Good"
)

// Thresholds classifies a unit count for display. The cutoffs are
// policy, not structure, so they are injectable.
type Thresholds struct {
	Critical int // below this: Critical
	Low      int // below this: Low
}

var DefaultThresholds = Thresholds{Critical: 5, Low: 10}

func (t Thresholds) Classify(units int) StockStatus {
	switch {
	case units < t.Critical:
		return StockCritical
	case units < t.Low:
		return StockLow
	default:
		return StockGood
	}
}

// Item is one row of a hospital's inventory view.
type Item struct {
	BloodGroup blood.Group `json:"type"`
	Units      int         `json:"total"`
	Status     StockStatus `json:"status"`
}

// Report summarizes a hospital's stock movement for its dashboard.
type Report struct {
	TotalUnitsCollected int `json:"total_units_collected"`
	BatchesExpiringSoon int `json:"batches_expiring_soon"`
}
