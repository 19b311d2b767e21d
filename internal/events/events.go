// Package events decouples the settlement pipeline from notification
// side effects. The pipeline publishes after its critical path commits;
// subscribers (email, CRM sync, invoice generation) run asynchronously and
// their failures are logged, never surfaced to the customer operation.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies the kind of order event.
type Type string

const (
	TypeOrderCreated       Type = "order.created"
	TypeOrderStatusChanged Type = "order.status_changed"
	TypeOrderShipped       Type = "order.shipped"
	TypeTrackingAdded      Type = "tracking.added"
)

// Event describes something that happened to an order.
type Event struct {
	Type        Type      `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	Status      string    `json:"status,omitempty"`
	Carrier     string    `json:"carrier,omitempty"`
	Tracking    string    `json:"tracking_number,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Subscriber consumes events. Implementations must tolerate redelivery-free
// best-effort semantics: a dropped or failed event is logged and gone.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, ev Event) error
}

// Publisher fans events out to subscribers from a single dispatch goroutine.
type Publisher struct {
	lg          *zap.Logger
	subscribers []Subscriber
	ch          chan Event

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

// NewPublisher creates a Publisher with the given buffer size.
func NewPublisher(lg *zap.Logger, buffer int, subscribers ...Subscriber) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		lg:          lg,
		subscribers: subscribers,
		ch:          make(chan Event, buffer),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatch loop. The loop drains remaining buffered events
// after Stop is called, so shutdown does not drop what was already accepted.
func (p *Publisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go func() {
			defer close(p.done)
			for ev := range p.ch {
				p.dispatch(ctx, ev)
			}
		}()
	})
}

// Stop closes the publisher and waits for buffered events to be dispatched.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.ch)
	})
	<-p.done
}

// Publish enqueues an event without blocking. When the buffer is full the
// event is dropped with a warning: notifications must never stall the
// settlement pipeline.
func (p *Publisher) Publish(ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case p.ch <- ev:
	default:
		p.lg.Warn("event buffer full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("order_id", ev.OrderID),
		)
	}
}

func (p *Publisher) dispatch(ctx context.Context, ev Event) {
	for _, sub := range p.subscribers {
		if err := sub.Handle(ctx, ev); err != nil {
			p.lg.Warn("event subscriber failed",
				zap.String("subscriber", sub.Name()),
				zap.String("type", string(ev.Type)),
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
		}
	}
}
