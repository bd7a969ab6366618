package directory

import (
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
)

type Role string

const (
	RoleDonor    Role = "donor"
	RoleHospital Role = "hospital"
)

// User is a donor or hospital as the coordination core sees it. The
// full profile (credentials, contact details, availability flags) lives
// in the identity service and is out of scope here.
type User struct {
	ID               uuid.UUID
	Role             Role
	Name             string
	Email            *string
	BloodGroup       *blood.Group
	City             string
	FCMToken         string
	LastDonationDate *time.Time
	DonationCount    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DonationRecord is appended when a donor's request completes, so the
// donor dashboard and the cooling-period rule both see the donation.
type DonationRecord struct {
	ID         uuid.UUID
	DonorID    uuid.UUID
	HospitalID uuid.UUID
	BloodGroup blood.Group
	Units      int
	RequestID  *uuid.UUID
	DonatedAt  time.Time
}
