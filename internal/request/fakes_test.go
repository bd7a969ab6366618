package request

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redcell/bloodlink/internal/blood"
	"github.com/redcell/bloodlink/internal/directory"
	"github.com/redcell/bloodlink/internal/inventory"
	"github.com/redcell/bloodlink/internal/notify"
)

// fakeRepo is an in-memory Repository with the same conditional-write
// semantics as the Postgres one: every transition checks its
// precondition and mutates under a single mutex.
type fakeRepo struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*Request
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{requests: make(map[uuid.UUID]*Request)}
}

func (f *fakeRepo) Insert(_ context.Context, r *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	f.requests[r.ID] = &cp
	return nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) ClaimAccept(_ context.Context, id, actorID uuid.UUID, at time.Time) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != StatusActive || r.AcceptedBy != nil {
		return nil, ErrRequestNotFound
	}
	r.Status = StatusAccepted
	r.AcceptedBy = &actorID
	r.AcceptedAt = &at
	if r.GiverID == nil {
		r.GiverID = &actorID
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) CompleteFrom(_ context.Context, id uuid.UUID, from Status, at time.Time) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != from {
		return nil, ErrRequestNotFound
	}
	r.Status = StatusCompleted
	r.CompletedAt = &at
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) CancelFrom(_ context.Context, id uuid.UUID, from Status, reason string, _ time.Time) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != from {
		return nil, ErrRequestNotFound
	}
	r.Status = StatusCancelled
	r.CancelReason = reason
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) MarkDispatched(_ context.Context, id uuid.UUID, d DispatchDetails) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != StatusAccepted {
		return nil, ErrRequestNotFound
	}
	r.Status = StatusDispatched
	r.Dispatch = &d
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) ExpireIfActive(_ context.Context, id uuid.UUID) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok || r.Status != StatusActive {
		return nil, ErrRequestNotFound
	}
	r.Status = StatusExpired
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) AddIgnore(_ context.Context, id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if !r.IgnoredByUser(userID) {
		r.IgnoredBy = append(r.IgnoredBy, userID)
	}
	return nil
}

func (f *fakeRepo) ListActive(_ context.Context) ([]Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.Status == StatusActive {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByRequester(_ context.Context, requesterID uuid.UUID) ([]Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.RequesterID == requesterID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) FindExpiredActive(_ context.Context, now time.Time) ([]Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Request
	for _, r := range f.requests {
		if r.Status == StatusActive && r.ExpiredAt(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) FulfilledUnits(_ context.Context, hospitalID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, r := range f.requests {
		if r.Status == StatusCompleted && r.GiverID != nil && *r.GiverID == hospitalID {
			total += r.Units
		}
	}
	return total, nil
}

func (f *fakeRepo) status(id uuid.UUID) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[id].Status
}

// fakeStock tracks per-hospital per-group units with the same
// check-and-decrement contract as the inventory service.
type fakeStock struct {
	mu      sync.Mutex
	units   map[uuid.UUID]map[blood.Group]int
	credits []stockEvent
	refunds []stockEvent
}

type stockEvent struct {
	hospitalID uuid.UUID
	group      blood.Group
	units      int
	fromDonor  bool
}

func newFakeStock() *fakeStock {
	return &fakeStock{units: make(map[uuid.UUID]map[blood.Group]int)}
}

func (f *fakeStock) set(hospitalID uuid.UUID, group blood.Group, units int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.units[hospitalID] == nil {
		f.units[hospitalID] = make(map[blood.Group]int)
	}
	f.units[hospitalID][group] = units
}

func (f *fakeStock) get(hospitalID uuid.UUID, group blood.Group) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.units[hospitalID][group]
}

func (f *fakeStock) Reserve(_ context.Context, hospitalID uuid.UUID, group blood.Group, units int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.units[hospitalID][group] < units {
		return fmt.Errorf("%d of %s at %s: %w", units, group, hospitalID, inventory.ErrInsufficientStock)
	}
	f.units[hospitalID][group] -= units
	return nil
}

func (f *fakeStock) Refund(_ context.Context, hospitalID uuid.UUID, group blood.Group, units int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.units[hospitalID] == nil {
		f.units[hospitalID] = make(map[blood.Group]int)
	}
	f.units[hospitalID][group] += units
	f.refunds = append(f.refunds, stockEvent{hospitalID, group, units, false})
	return nil
}

func (f *fakeStock) Credit(_ context.Context, hospitalID uuid.UUID, group blood.Group, units int, fromDonor bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.units[hospitalID] == nil {
		f.units[hospitalID] = make(map[blood.Group]int)
	}
	f.units[hospitalID][group] += units
	f.credits = append(f.credits, stockEvent{hospitalID, group, units, fromDonor})
	return nil
}

// fakeDirectory serves a fixed set of users.
type fakeDirectory struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*directory.User
	donations []directory.DonationRecord
}

func newFakeDirectory(users ...*directory.User) *fakeDirectory {
	d := &fakeDirectory{users: make(map[uuid.UUID]*directory.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (f *fakeDirectory) GetUserByID(_ context.Context, id uuid.UUID) (*directory.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeDirectory) FindDonors(_ context.Context, groups []blood.Group, cities []string, exclude uuid.UUID) ([]directory.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	groupSet := make(map[blood.Group]bool, len(groups))
	for _, g := range groups {
		groupSet[g] = true
	}
	citySet := make(map[string]bool, len(cities))
	for _, c := range cities {
		citySet[c] = true
	}

	var out []directory.User
	for _, u := range f.users {
		if u.Role != directory.RoleDonor || u.ID == exclude || u.BloodGroup == nil {
			continue
		}
		if !groupSet[*u.BloodGroup] {
			continue
		}
		if len(citySet) > 0 && !citySet[u.City] {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeDirectory) RecordDonation(_ context.Context, rec directory.DonationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.donations = append(f.donations, rec)
	return nil
}

// captureNotifier records every delivery for assertions.
type captureNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	recipients []uuid.UUID
	n          notify.Notification
}

func (c *captureNotifier) Notify(_ context.Context, recipients []uuid.UUID, n notify.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentNotification{recipients: recipients, n: n})
	return nil
}

func (c *captureNotifier) byType(typ string) []sentNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentNotification
	for _, s := range c.sent {
		if s.n.Type == typ {
			out = append(out, s)
		}
	}
	return out
}
