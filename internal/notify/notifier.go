// Package notify delivers best-effort notifications to donors and
// hospitals. Delivery is fire-and-forget: a failed or dropped message
// must never roll back the state transition that produced it.
package notify

import (
	"context"

	"github.com/google/uuid"
)

// Notification is the payload handed to the delivery sink. Payload keys
// are forwarded verbatim so mobile clients can deep-link.
type Notification struct {
	Type    string            `json:"type"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Notifier fans a notification out to a set of recipients.
type Notifier interface {
	Notify(ctx context.Context, recipients []uuid.UUID, n Notification) error
}

type noopNotifier struct{}

// NewNoop returns a sink that drops everything. Used in tests and when
// no broker is configured.
func NewNoop() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(context.Context, []uuid.UUID, Notification) error {
	return nil
}
