package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
)

var ErrUserNotFound = errors.New("user not found")

// Repository is the read side of the user directory plus the single
// write the coordination core performs: recording a completed donation.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindDonors returns donors whose blood group is one of groups,
	// optionally narrowed to a set of cities, excluding exclude.
	// Eligibility filtering happens at the caller, which owns the
	// reference instant.
	FindDonors(ctx context.Context, groups []blood.Group, cities []string, exclude uuid.UUID) ([]User, error)

	// RecordDonation appends a donation record and refreshes the
	// donor's cached lastDonationDate and donation counter.
	RecordDonation(ctx context.Context, rec DonationRecord) error
}
