package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
	"github.com/redcell/bloodlink/internal/directory"
	"github.com/redcell/bloodlink/internal/inventory"
	"github.com/redcell/bloodlink/internal/request"
	redisclient "github.com/redcell/bloodlink/internal/redis"
)

var validate = validator.New()

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// Request lifecycle handlers

func createRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequestRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		in := request.CreateInput{
			RequesterID: requesterID,
			BloodGroup:  req.BloodGroup,
			Units:       req.Units,
			Type:        request.Type(req.Type),
			Window:      req.RequiredTime,
			Cities:      req.Cities,
		}
		if req.TargetID != "" {
			targetID, err := uuid.Parse(req.TargetID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_target_id", "target_id must be a valid UUID")
				return
			}
			in.TargetID = &targetID
		}

		created, err := svc.Create(r.Context(), in)
		if err != nil {
			handleRequestError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRequestResponse(created))
	}
}

func getRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		req, err := svc.Get(r.Context(), id)
		if err != nil {
			handleRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(req))
	}
}

func listActiveRequestsHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id query parameter must be a valid UUID")
			return
		}

		reqs, err := svc.ListActiveForUser(r.Context(), userID)
		if err != nil {
			handleRequestError(w, err)
			return
		}

		out := make([]RequestResponse, 0, len(reqs))
		for i := range reqs {
			out = append(out, toRequestResponse(&reqs[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func acceptRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		var req AcceptRequestRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		actorID, _ := uuid.Parse(req.ActorID)

		accepted, err := svc.Accept(r.Context(), id, actorID)
		if err != nil {
			handleRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(accepted))
	}
}

func completeRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}

		completed, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(completed))
	}
}

func cancelRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequestRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		cancelled, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			handleRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(cancelled))
	}
}

func dispatchRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		var req DispatchRequestRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		dispatched, err := svc.Dispatch(r.Context(), id, req.Mode, req.TrackingID)
		if err != nil {
			handleRequestError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(dispatched))
	}
}

func ignoreRequestHandler(svc *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		var req IgnoreRequestRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		userID, _ := uuid.Parse(req.UserID)

		if err := svc.Ignore(r.Context(), id, userID); err != nil {
			handleRequestError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Inventory handlers

func getInventoryHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID, ok := parseIDParam(w, r, "hospitalID")
		if !ok {
			return
		}

		items, err := svc.GetInventory(r.Context(), hospitalID)
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func createBatchHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBatchRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		hospitalID, _ := uuid.Parse(req.HospitalID)

		group, err := blood.ParseGroup(req.BloodGroup)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_blood_group", err.Error())
			return
		}

		in := inventory.CreateBatchInput{
			HospitalID: hospitalID,
			BloodGroup: group,
			Units:      req.Units,
			SourceType: inventory.SourceType(req.SourceType),
			SourceName: req.SourceName,
		}
		if req.CollectedDate != nil {
			in.CollectedDate = *req.CollectedDate
		}
		if req.ExpiryDate != nil {
			in.ExpiryDate = *req.ExpiryDate
		}

		batch, err := svc.CreateBatch(r.Context(), in)
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBatchResponse(batch))
	}
}

func listBatchesHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID, ok := parseIDParam(w, r, "hospitalID")
		if !ok {
			return
		}

		batches, err := svc.ListBatches(r.Context(), hospitalID)
		if err != nil {
			handleInventoryError(w, err)
			return
		}

		out := make([]BatchResponse, 0, len(batches))
		for i := range batches {
			out = append(out, toBatchResponse(&batches[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func useBatchUnitsHandler(svc *inventory.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, ok := parseIDParam(w, r, "id")
		if !ok {
			return
		}
		var req UseBatchUnitsRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}
		hospitalID, _ := uuid.Parse(req.HospitalID)

		remaining, err := svc.UseBatchUnits(r.Context(), batchID, hospitalID, req.Quantity, inventory.BatchAction(req.Action))
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, UseBatchUnitsResponse{Remaining: remaining})
	}
}

func hospitalReportHandler(inv *inventory.Service, reqs *request.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hospitalID, ok := parseIDParam(w, r, "hospitalID")
		if !ok {
			return
		}

		report, err := inv.Report(r.Context(), hospitalID)
		if err != nil {
			handleInventoryError(w, err)
			return
		}
		dispatched, err := reqs.FulfilledUnits(r.Context(), hospitalID)
		if err != nil {
			handleRequestError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, ReportResponse{
			TotalUnitsCollected:  report.TotalUnitsCollected,
			TotalUnitsDispatched: dispatched,
			BatchesExpiringSoon:  report.BatchesExpiringSoon,
		})
	}
}

// Error mapping

func handleRequestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, request.ErrTargetNotAllowed):
		writeError(w, http.StatusBadRequest, "invalid_target", err.Error())
	case errors.Is(err, request.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, directory.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, request.ErrRequestExpired):
		writeError(w, http.StatusConflict, "request_expired", err.Error())
	case errors.Is(err, request.ErrAlreadyAccepted):
		writeError(w, http.StatusConflict, "already_accepted", err.Error())
	case errors.Is(err, request.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, request.ErrBeingProcessed),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "request_being_processed", "request is currently being processed, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleInventoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, inventory.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, "batch_not_found", err.Error())
	case errors.Is(err, inventory.ErrInsufficientUnits):
		writeError(w, http.StatusConflict, "insufficient_units", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "insufficient_stock", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
