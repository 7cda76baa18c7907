// Package notify persists notification records and pushes them to live
// sessions. Persistence is mandatory; live delivery is best-effort.
package notify

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/2k1998/BWC-Portal-Backend/internal/metrics"
	"github.com/2k1998/BWC-Portal-Backend/internal/wire"
)

// Sender is the slice of the connection registry the dispatcher needs.
type Sender interface {
	SendToUser(userID string, payload []byte) bool
}

type Dispatcher struct {
	logger  *log.Logger
	store   Store
	conns   Sender
	metrics *metrics.Metrics
}

func NewDispatcher(logger *log.Logger, store Store, conns Sender, mx *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Dispatcher{logger: logger, store: store, conns: conns, metrics: mx}
}

// Notify persists the record, then attempts live delivery. A persistence
// failure propagates; a delivery failure never does — the durable record is
// readable on the recipient's next poll.
func (d *Dispatcher) Notify(ctx context.Context, recipientID, kind, title, body, workflowID string) (Notification, error) {
	n := Notification{
		RecipientID: recipientID,
		WorkflowID:  workflowID,
		Kind:        kind,
		Title:       title,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.Create(ctx, &n); err != nil {
		return Notification{}, err
	}
	d.Push(n)
	return n, nil
}

// Push delivers an already-persisted notification to the recipient's live
// sessions, if any.
func (d *Dispatcher) Push(n Notification) {
	payload, err := wire.Notification(n)
	if err != nil {
		d.logger.Printf("notification %s marshal error: %v", n.ID, err)
		return
	}
	live := d.conns.SendToUser(n.RecipientID, payload)
	d.metrics.NotificationDelivered(live)
	if !live {
		d.logger.Printf("notification %s queued for offline user=%s", n.ID, n.RecipientID)
	}
}

// Send delivers an arbitrary wire payload to a user, best-effort.
func (d *Dispatcher) Send(recipientID string, payload []byte) bool {
	return d.conns.SendToUser(recipientID, payload)
}

func (d *Dispatcher) MarkRead(ctx context.Context, id, actorID string) (Notification, error) {
	return d.store.MarkRead(ctx, id, actorID, time.Now().UTC())
}

func (d *Dispatcher) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]Notification, error) {
	return d.store.List(ctx, recipientID, unreadOnly, limit)
}
