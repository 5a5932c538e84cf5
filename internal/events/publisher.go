// Package events moves domain events from the services to their consumers, in process and over Kafka.
package events

import (
	"context"
	"sync"

	"github.com/ryu-qqq/setof-commerce-sub021/internal/domain"
	"github.com/ryu-qqq/setof-commerce-sub021/internal/metrics"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/errors"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

// Publisher delivers events at least once. Callers publish only after the snapshot that produced
// the events was saved.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Handler consumes a single event.
type Handler func(ctx context.Context, event domain.Event) error

// Dispatcher is the in-process bus. Handlers run synchronously in subscription order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   logger.Logger
}

func NewDispatcher(log logger.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		logger:   log,
	}
}

// Subscribe registers h for events whose EventType equals eventType.
func (d *Dispatcher) Subscribe(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Publish runs every handler of every event. A failing handler does not stop the others; all
// failures are logged and returned joined.
func (d *Dispatcher) Publish(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, e := range events {
		d.mu.RLock()
		handlers := d.handlers[e.EventType()]
		d.mu.RUnlock()

		for _, h := range handlers {
			if err := h(ctx, e); err != nil {
				d.logger.Error("Event handler failed", map[string]interface{}{
					"event_type":   e.EventType(),
					"aggregate_id": e.AggregateID().String(),
					"error":        err,
				})
				errs = append(errs, errors.Wrap(err, e.EventType()))
			}
		}
	}
	return errors.Join(errs...)
}

// Multi fans events out to several publishers.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Chain publishes to the external transports first and to the in-process dispatcher last.
// Dispatcher handlers may publish follow-up events synchronously; this keeps every follow-up behind
// its cause on the external transports.
func Chain(bus *Dispatcher, external ...Publisher) Publisher {
	m := make(Multi, 0, len(external)+1)
	m = append(m, external...)
	return append(m, bus)
}

// Instrumented counts published events per type.
type Instrumented struct {
	Next Publisher
}

func (p Instrumented) Publish(ctx context.Context, events ...domain.Event) error {
	err := p.Next.Publish(ctx, events...)
	for _, e := range events {
		metrics.RecordEventPublished(e.EventType(), err)
	}
	return err
}
