package request

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/redcell/bloodlink/internal/blood"
	"github.com/redcell/bloodlink/internal/clock"
	"github.com/redcell/bloodlink/internal/directory"
	"github.com/redcell/bloodlink/internal/eligibility"
	"github.com/redcell/bloodlink/internal/notify"
	redisclient "github.com/redcell/bloodlink/internal/redis"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrBeingProcessed   = errors.New("request is being processed, please retry")
	ErrTargetNotAllowed = errors.New("target is not a valid provider")
)

const (
	NotifTypeBroadcast  = "EMERGENCY_ALERT"
	NotifTypeDirected   = "P2P_REQUEST"
	NotifTypeAccepted   = "REQUEST_ACCEPTED"
	NotifTypeDispatched = "BLOOD_DISPATCHED"
	NotifTypeCompleted  = "REQUEST_COMPLETED"
	NotifTypeCancelled  = "REQUEST_CANCELLED"
)

// Stock is the slice of the inventory service the lifecycle needs:
// reserve at acceptance, refund on cancellation, credit on completion.
type Stock interface {
	Reserve(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int) error
	Refund(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int, sourceName string) error
	Credit(ctx context.Context, hospitalID uuid.UUID, group blood.Group, units int, fromDonor bool, sourceName string) error
}

// Service drives the request state machine. All mutual exclusion lives
// in the repository's conditional writes; the locker only narrows the
// window in which two acceptors both pay for a reservation.
type Service struct {
	repo     Repository
	stock    Stock
	users    directory.Repository
	notifier notify.Notifier
	locker   redisclient.Locker
	clock    clock.Clock
	log      *zap.Logger
}

func NewService(repo Repository, stock Stock, users directory.Repository, notifier notify.Notifier, locker redisclient.Locker, clk clock.Clock, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		stock:    stock,
		users:    users,
		notifier: notifier,
		locker:   locker,
		clock:    clk,
		log:      log,
	}
}

type CreateInput struct {
	RequesterID uuid.UUID
	TargetID    *uuid.UUID
	BloodGroup  string
	Units       int
	Type        Type
	Window      string
	Cities      []string
}

// Create validates and persists a new request, then fans notifications
// out to candidate providers. Fan-out is best effort: its failure is
// logged and never fails the creation.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Request, error) {
	if in.Units <= 0 {
		return nil, fmt.Errorf("%w: units must be greater than 0", ErrValidation)
	}
	group, err := blood.ParseGroup(in.BloodGroup)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	window, err := ParseWindow(in.Window)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch in.Type {
	case TypeEmergencyBroadcast, TypeP2P, TypeStockTransfer:
	default:
		return nil, fmt.Errorf("%w: unknown request type %q", ErrValidation, in.Type)
	}

	requester, err := s.users.GetUserByID(ctx, in.RequesterID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: requester does not exist", ErrValidation)
		}
		return nil, fmt.Errorf("load requester: %w", err)
	}

	r := &Request{
		RequesterID: in.RequesterID,
		ReceiverID:  in.RequesterID,
		BloodGroup:  group,
		Units:       in.Units,
		Type:        in.Type,
		Status:      StatusActive,
		Cities:      in.Cities,
	}

	now := s.clock.Now()
	expiresAt := window.ExpiryFrom(now)
	r.ExpiresAt = &expiresAt

	if in.Type.Directed() {
		if in.TargetID == nil {
			return nil, fmt.Errorf("%w: target is required for %s requests", ErrValidation, in.Type)
		}
		if *in.TargetID == in.RequesterID {
			return nil, fmt.Errorf("%w: cannot request blood from yourself", ErrValidation)
		}
		target, err := s.users.GetUserByID(ctx, *in.TargetID)
		if err != nil {
			if errors.Is(err, directory.ErrUserNotFound) {
				return nil, ErrTargetNotAllowed
			}
			return nil, fmt.Errorf("load target: %w", err)
		}
		if target.Role != directory.RoleHospital {
			return nil, ErrTargetNotAllowed
		}
		r.TargetID = in.TargetID
		// Direction is fixed once, here: the target gives, the
		// requester receives.
		r.GiverID = in.TargetID
	}

	if err := s.repo.Insert(ctx, r); err != nil {
		return nil, err
	}

	s.fanOut(ctx, r, requester)

	return r, nil
}

// fanOut hands the new request to its candidate providers.
func (s *Service) fanOut(ctx context.Context, r *Request, requester *directory.User) {
	payload := map[string]string{"requestId": r.ID.String(), "bloodGroup": string(r.BloodGroup)}

	if r.Type.Directed() {
		n := notify.Notification{
			Type:    NotifTypeDirected,
			Title:   "New Blood Request",
			Body:    fmt.Sprintf("%s requested %d units of %s.", requester.Name, r.Units, r.BloodGroup),
			Payload: payload,
		}
		if err := s.notifier.Notify(ctx, []uuid.UUID{*r.TargetID}, n); err != nil {
			s.log.Warn("directed fan-out failed", zap.String("request_id", r.ID.String()), zap.Error(err))
		}
		return
	}

	donors, err := s.users.FindDonors(ctx, blood.CompatibleDonors(r.BloodGroup), r.Cities, r.RequesterID)
	if err != nil {
		s.log.Warn("broadcast candidate lookup failed", zap.String("request_id", r.ID.String()), zap.Error(err))
		return
	}

	now := s.clock.Now()
	recipients := make([]uuid.UUID, 0, len(donors))
	for _, d := range donors {
		if !eligibility.IsEligible(d.LastDonationDate, now) {
			continue
		}
		recipients = append(recipients, d.ID)
	}
	if len(recipients) == 0 {
		return
	}

	n := notify.Notification{
		Type:    NotifTypeBroadcast,
		Title:   "Emergency Blood Needed!",
		Body:    fmt.Sprintf("Urgent: %s blood needed at %s.", r.BloodGroup, requester.Name),
		Payload: payload,
	}
	if err := s.notifier.Notify(ctx, recipients, n); err != nil {
		s.log.Warn("broadcast fan-out failed", zap.String("request_id", r.ID.String()), zap.Error(err))
	}
	s.log.Info("request broadcast",
		zap.String("request_id", r.ID.String()),
		zap.Int("candidates", len(recipients)))
}

// Accept claims the request for actorID. Exactly one actor can ever
// win the claim; the winner of a directed request also pays for the
// stock it just promised.
func (s *Service) Accept(ctx context.Context, id, actorID uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// Idempotent retry by the same actor.
	if r.AcceptedBy != nil && *r.AcceptedBy == actorID &&
		(r.Status == StatusAccepted || r.Status == StatusDispatched) {
		return r, nil
	}

	if r.Status == StatusCompleted {
		return nil, ErrInvalidTransition
	}

	now := s.clock.Now()
	if r.Status == StatusExpired || (r.Status == StatusActive && r.ExpiredAt(now)) {
		// Lazy expiry: flip the stored status on the way out.
		if r.Status == StatusActive {
			if _, expErr := s.repo.ExpireIfActive(ctx, id); expErr != nil && !errors.Is(expErr, ErrRequestNotFound) {
				s.log.Warn("failed to mark request expired during accept",
					zap.String("request_id", id.String()), zap.Error(expErr))
			}
		}
		return nil, ErrRequestExpired
	}

	var accepted *Request

	err = s.locker.WithRequestLock(ctx, id, func(lockCtx context.Context) error {
		reserved := false
		if r.Type.ReservesOnAccept() {
			// Reserve before the claim so an insufficient-stock
			// acceptor never transitions the request.
			if err := s.stock.Reserve(lockCtx, actorID, r.BloodGroup, r.Units); err != nil {
				return err
			}
			reserved = true
		}

		claimed, err := s.repo.ClaimAccept(lockCtx, id, actorID, s.clock.Now())
		if err != nil {
			if reserved {
				if refundErr := s.stock.Refund(lockCtx, actorID, r.BloodGroup, r.Units, "acceptance rollback"); refundErr != nil {
					s.log.Error("failed to roll back reservation after lost claim",
						zap.String("request_id", id.String()),
						zap.String("actor_id", actorID.String()),
						zap.Error(refundErr))
				}
			}
			if errors.Is(err, ErrRequestNotFound) {
				return s.classifyLostClaim(lockCtx, id, actorID)
			}
			return err
		}

		accepted = claimed
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBeingProcessed
		}
		return nil, err
	}
	if accepted == nil {
		// Idempotent path resolved inside classifyLostClaim.
		return s.repo.GetByID(ctx, id)
	}

	s.notifyParty(ctx, accepted.RequesterID, notify.Notification{
		Type:  NotifTypeAccepted,
		Title: "Request Accepted",
		Body:  fmt.Sprintf("Your request for %d units of %s has been accepted.", accepted.Units, accepted.BloodGroup),
		Payload: map[string]string{
			"requestId": accepted.ID.String(),
		},
	})

	return accepted, nil
}

// classifyLostClaim re-reads a request after a failed conditional claim
// and maps the stored state to the caller-facing conflict.
func (s *Service) classifyLostClaim(ctx context.Context, id, actorID uuid.UUID) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case current.AcceptedBy != nil && *current.AcceptedBy == actorID:
		return nil // same actor retried and already holds the claim
	case current.AcceptedBy != nil:
		return ErrAlreadyAccepted
	case current.Status == StatusExpired:
		return ErrRequestExpired
	default:
		return ErrInvalidTransition
	}
}

// Complete moves an accepted or dispatched request to its terminal
// success state and settles stock on the receiving side. The giver's
// side was already settled at acceptance for directed types; donors
// have no inventory, so for broadcasts there is nothing to deduct.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if r.Status != StatusAccepted && r.Status != StatusDispatched {
		return nil, ErrInvalidTransition
	}

	completed, err := s.repo.CompleteFrom(ctx, id, r.Status, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// Lost the race to another transition.
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	s.settleCompletion(ctx, completed)

	s.notifyParty(ctx, completed.RequesterID, notify.Notification{
		Type:    NotifTypeCompleted,
		Title:   "Request Completed",
		Body:    fmt.Sprintf("%d units of %s have been received.", completed.Units, completed.BloodGroup),
		Payload: map[string]string{"requestId": completed.ID.String()},
	})

	return completed, nil
}

// settleCompletion credits the receiver and records the donation when
// the giver is a donor. Failures here are drift between the request
// ledger and the stock ledger: the transition has committed, so they
// are logged for investigation rather than unwound.
func (s *Service) settleCompletion(ctx context.Context, r *Request) {
	if r.GiverID == nil {
		s.log.Error("completed request has no giver", zap.String("request_id", r.ID.String()))
		return
	}

	giver, err := s.users.GetUserByID(ctx, *r.GiverID)
	fromDonor := false
	sourceName := "External Source"
	if err != nil {
		s.log.Warn("giver lookup failed during completion",
			zap.String("request_id", r.ID.String()), zap.Error(err))
	} else {
		fromDonor = giver.Role == directory.RoleDonor
		sourceName = giver.Name
	}

	if err := s.stock.Credit(ctx, r.ReceiverID, r.BloodGroup, r.Units, fromDonor, sourceName); err != nil {
		s.log.Error("failed to credit receiver stock",
			zap.String("request_id", r.ID.String()),
			zap.String("receiver_id", r.ReceiverID.String()),
			zap.Error(err))
	}

	if fromDonor {
		rec := directory.DonationRecord{
			DonorID:    *r.GiverID,
			HospitalID: r.ReceiverID,
			BloodGroup: r.BloodGroup,
			Units:      r.Units,
			RequestID:  &r.ID,
			DonatedAt:  s.clock.Now(),
		}
		if err := s.users.RecordDonation(ctx, rec); err != nil {
			s.log.Error("failed to record donation",
				zap.String("request_id", r.ID.String()),
				zap.String("donor_id", r.GiverID.String()),
				zap.Error(err))
		}
	}
}

// Cancel terminates a not-yet-completed request. Cancelling after
// acceptance of a directed request refunds the acceptor the exact
// reservation made at Accept: same blood group, same unit count.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch r.Status {
	case StatusCompleted, StatusExpired:
		return nil, ErrInvalidTransition
	case StatusCancelled:
		return r, nil // idempotent; refund already happened, if any
	}

	cancelled, err := s.repo.CancelFrom(ctx, id, r.Status, reason, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	wasReserved := (r.Status == StatusAccepted || r.Status == StatusDispatched) &&
		r.Type.ReservesOnAccept() && cancelled.AcceptedBy != nil
	if wasReserved {
		if err := s.stock.Refund(ctx, *cancelled.AcceptedBy, cancelled.BloodGroup, cancelled.Units, "cancelled request"); err != nil {
			s.log.Error("failed to refund reservation on cancel",
				zap.String("request_id", id.String()),
				zap.String("acceptor_id", cancelled.AcceptedBy.String()),
				zap.Error(err))
		}
	}

	// Invalidate the request for anyone still watching it.
	recipients := []uuid.UUID{cancelled.RequesterID}
	if cancelled.AcceptedBy != nil && *cancelled.AcceptedBy != cancelled.RequesterID {
		recipients = append(recipients, *cancelled.AcceptedBy)
	}
	n := notify.Notification{
		Type:    NotifTypeCancelled,
		Title:   "Request Cancelled",
		Body:    fmt.Sprintf("The request for %d units of %s was cancelled.", cancelled.Units, cancelled.BloodGroup),
		Payload: map[string]string{"requestId": cancelled.ID.String()},
	}
	if err := s.notifier.Notify(ctx, recipients, n); err != nil {
		s.log.Warn("cancellation notification failed",
			zap.String("request_id", cancelled.ID.String()), zap.Error(err))
	}

	return cancelled, nil
}

// Dispatch records that the accepted stock is physically on its way.
// No stock movement: the reservation already happened at Accept.
func (s *Service) Dispatch(ctx context.Context, id uuid.UUID, mode, trackingID string) (*Request, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusAccepted {
		return nil, ErrInvalidTransition
	}

	dispatched, err := s.repo.MarkDispatched(ctx, id, DispatchDetails{
		Mode:       mode,
		TrackingID: trackingID,
		At:         s.clock.Now(),
	})
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, err
	}

	s.notifyParty(ctx, dispatched.ReceiverID, notify.Notification{
		Type:    NotifTypeDispatched,
		Title:   "Blood Dispatched",
		Body:    fmt.Sprintf("%d units of %s are on the way.", dispatched.Units, dispatched.BloodGroup),
		Payload: map[string]string{"requestId": dispatched.ID.String()},
	})

	return dispatched, nil
}

// Ignore mutes the request for userID: it disappears from that user's
// active listing but stays visible to everyone else.
func (s *Service) Ignore(ctx context.Context, id, userID uuid.UUID) error {
	return s.repo.AddIgnore(ctx, id, userID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByRequester(ctx context.Context, requesterID uuid.UUID) ([]Request, error) {
	return s.repo.ListByRequester(ctx, requesterID)
}

// ListActiveForUser returns broadcast requests the user could act on:
// still open, not expired, not muted, not their own, and with a blood
// group their own blood can serve.
func (s *Service) ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]Request, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	all, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var result []Request
	for i := range all {
		r := &all[i]
		if r.ExpiredAt(now) {
			// Lazy expiry on read.
			if _, err := s.repo.ExpireIfActive(ctx, r.ID); err != nil && !errors.Is(err, ErrRequestNotFound) {
				s.log.Warn("failed to expire request on read",
					zap.String("request_id", r.ID.String()), zap.Error(err))
			}
			continue
		}
		if r.RequesterID == userID || r.IgnoredByUser(userID) || r.AcceptedBy != nil {
			continue
		}
		if user.BloodGroup != nil && !blood.CanDonate(*user.BloodGroup, r.BloodGroup) {
			continue
		}
		result = append(result, *r)
	}
	return result, nil
}

// ExpireStale flips every active request past its window to expired.
// Called by the periodic worker; lazy evaluation on read and accept is
// the primary mechanism and this sweep just tidies the tail.
func (s *Service) ExpireStale(ctx context.Context) error {
	stale, err := s.repo.FindExpiredActive(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("find expired active requests: %w", err)
	}

	for _, r := range stale {
		if _, err := s.repo.ExpireIfActive(ctx, r.ID); err != nil && !errors.Is(err, ErrRequestNotFound) {
			s.log.Error("failed to expire request",
				zap.String("request_id", r.ID.String()), zap.Error(err))
		}
	}
	return nil
}

// FulfilledUnits reports how many units the hospital has given through
// completed requests, for the dispatch report.
func (s *Service) FulfilledUnits(ctx context.Context, hospitalID uuid.UUID) (int, error) {
	return s.repo.FulfilledUnits(ctx, hospitalID)
}

func (s *Service) notifyParty(ctx context.Context, recipient uuid.UUID, n notify.Notification) {
	if n.Type == "" {
		return
	}
	if err := s.notifier.Notify(ctx, []uuid.UUID{recipient}, n); err != nil {
		s.log.Warn("notification delivery failed",
			zap.String("recipient", recipient.String()),
			zap.String("type", n.Type),
			zap.Error(err))
	}
}
