package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/inventory"
	"github.com/redcell/bloodlink/internal/request"
)

type CreateRequestRequest struct {
	RequesterID  string   `json:"requester_id" validate:"required,uuid4"`
	TargetID     string   `json:"target_id,omitempty" validate:"omitempty,uuid4"`
	BloodGroup   string   `json:"blood_group" validate:"required"`
	Units        int      `json:"units" validate:"required,gt=0"`
	Type         string   `json:"type" validate:"required,oneof=emergency_broadcast p2p stock_transfer"`
	RequiredTime string   `json:"required_time,omitempty"`
	Cities       []string `json:"cities,omitempty"`
}

type AcceptRequestRequest struct {
	ActorID string `json:"actor_id" validate:"required,uuid4"`
}

type CancelRequestRequest struct {
	Reason string `json:"reason"`
}

type DispatchRequestRequest struct {
	Mode       string `json:"mode" validate:"required"`
	TrackingID string `json:"tracking_id"`
}

type IgnoreRequestRequest struct {
	UserID string `json:"user_id" validate:"required,uuid4"`
}

type RequestResponse struct {
	ID          uuid.UUID  `json:"id"`
	RequesterID uuid.UUID  `json:"requester_id"`
	TargetID    *uuid.UUID `json:"target_id,omitempty"`
	GiverID     *uuid.UUID `json:"giver_id,omitempty"`
	ReceiverID  uuid.UUID  `json:"receiver_id"`
	BloodGroup  string     `json:"blood_group"`
	Units       int        `json:"units"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	AcceptedBy  *uuid.UUID `json:"accepted_by,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toRequestResponse(r *request.Request) RequestResponse {
	return RequestResponse{
		ID:           r.ID,
		RequesterID:  r.RequesterID,
		TargetID:     r.TargetID,
		GiverID:      r.GiverID,
		ReceiverID:   r.ReceiverID,
		BloodGroup:   string(r.BloodGroup),
		Units:        r.Units,
		Type:         string(r.Type),
		Status:       string(r.Status),
		ExpiresAt:    r.ExpiresAt,
		AcceptedBy:   r.AcceptedBy,
		AcceptedAt:   r.AcceptedAt,
		CompletedAt:  r.CompletedAt,
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
	}
}

type CreateBatchRequest struct {
	HospitalID    string     `json:"hospital_id" validate:"required,uuid4"`
	BloodGroup    string     `json:"blood_group" validate:"required"`
	Units         int        `json:"units" validate:"required,gt=0"`
	CollectedDate *time.Time `json:"collected_date,omitempty"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	SourceType    string     `json:"source_type,omitempty" validate:"omitempty,oneof=donation transfer"`
	SourceName    string     `json:"source_name,omitempty"`
}

type UseBatchUnitsRequest struct {
	HospitalID string `json:"hospital_id" validate:"required,uuid4"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
	Action     string `json:"action" validate:"required,oneof=use discard"`
}

type UseBatchUnitsResponse struct {
	Remaining int `json:"remaining"`
}

type BatchResponse struct {
	ID            uuid.UUID `json:"id"`
	HospitalID    uuid.UUID `json:"hospital_id"`
	BloodGroup    string    `json:"blood_group"`
	Units         int       `json:"units"`
	CollectedDate time.Time `json:"collected_date"`
	ExpiryDate    time.Time `json:"expiry_date"`
	SourceType    string    `json:"source_type"`
	SourceName    string    `json:"source_name"`
	Status        string    `json:"status"`
}

func toBatchResponse(b *inventory.Batch) BatchResponse {
	return BatchResponse{
		ID:            b.ID,
		HospitalID:    b.HospitalID,
		BloodGroup:    string(b.BloodGroup),
		Units:         b.Units,
		CollectedDate: b.CollectedDate,
		ExpiryDate:    b.ExpiryDate,
		SourceType:    string(b.SourceType),
		SourceName:    b.SourceName,
		Status:        string(b.Status),
	}
}

type ReportResponse struct {
	TotalUnitsCollected  int `json:"total_units_collected"`
	TotalUnitsDispatched int `json:"total_units_dispatched"`
	BatchesExpiringSoon  int `json:"batches_expiring_soon"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
