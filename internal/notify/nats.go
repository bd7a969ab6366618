package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "notifications."

// NatsNotifier publishes one message per recipient on
// notifications.<recipientId>. Consumers (push gateway, in-app bell)
// subscribe with a wildcard.
type NatsNotifier struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNatsNotifier(url string, log *zap.Logger) (*NatsNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("bloodlink-notifier"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NatsNotifier{conn: conn, log: log}, nil
}

func (p *NatsNotifier) Notify(ctx context.Context, recipients []uuid.UUID, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	for _, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.conn.Publish(subjectPrefix+recipient.String(), data); err != nil {
			// Best effort: log and keep going so one bad publish
			// does not starve the remaining recipients.
			p.log.Warn("notification publish failed",
				zap.String("recipient", recipient.String()),
				zap.String("type", n.Type),
				zap.Error(err))
		}
	}
	return nil
}

func (p *NatsNotifier) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
