package event

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/event/topic"
)

// Handler receives a published event.
type Handler func(ctx context.Context, ev Event) error

// Subscription is a handle returned by Subscribe.
type Subscription struct {
	id      uint64
	pattern topic.Topic
}

// ID returns the subscription identifier.
func (s Subscription) ID() uint64 { return s.id }

// Pattern returns the topic pattern the subscription matches.
func (s Subscription) Pattern() topic.Topic { return s.pattern }

type subscriber struct {
	Subscription
	handler Handler
}

// Stats reports bus counters.
type Stats struct {
	Subscriptions    int
	EventsPublished  uint64
	HandlersExecuted uint64
	HandlerErrors    uint64
	HandlerPanics    uint64
}

// Bus delivers events synchronously to subscribers whose pattern matches
// the event topic. Handlers run in subscription order on the publishing
// goroutine; a failing or panicking handler does not stop delivery to the
// rest.
type Bus struct {
	mu      sync.RWMutex
	subs    []subscriber
	nextID  uint64
	closed  bool
	logger  *zap.Logger
	onPanic PanicHandler

	seq              atomic.Uint64
	handlersExecuted atomic.Uint64
	handlerErrors    atomic.Uint64
	handlerPanics    atomic.Uint64
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topics matching pattern.
func (b *Bus) Subscribe(pattern topic.Topic, handler Handler) (Subscription, error) {
	if !pattern.IsValid() {
		return Subscription{}, ErrInvalidTopic
	}
	if handler == nil {
		return Subscription{}, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Subscription{}, ErrBusClosed
	}
	b.nextID++
	sub := Subscription{id: b.nextID, pattern: pattern}
	b.subs = append(b.subs, subscriber{Subscription: sub, handler: handler})
	return sub, nil
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(sub Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == sub.id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// Publish delivers ev to every matching subscriber and returns the
// combined handler errors.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if !ev.Topic.IsValid() || ev.Topic.IsWildcard() {
		return ErrInvalidTopic
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	var targets []subscriber
	for _, s := range b.subs {
		if ev.Topic.Matches(s.pattern) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	ev.Seq = b.seq.Add(1)
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	var errs error
	for _, s := range targets {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, b.deliver(ctx, s, ev))
	}
	return errs
}

func (b *Bus) deliver(ctx context.Context, s subscriber, ev Event) (err error) {
	b.handlersExecuted.Add(1)
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			perr := &PanicError{SubscriptionID: s.id, Topic: ev.Topic, Value: r, Stack: debug.Stack()}
			b.logger.Error("event handler panicked",
				zap.Uint64("subscription", s.id),
				zap.Stringer("topic", ev.Topic),
				zap.Any("panic", r))
			if b.onPanic != nil {
				b.onPanic(ev, perr)
			}
			err = perr
		}
	}()

	if herr := s.handler(ctx, ev); herr != nil {
		b.handlerErrors.Add(1)
		b.logger.Warn("event handler failed",
			zap.Uint64("subscription", s.id),
			zap.Stringer("topic", ev.Topic),
			zap.Error(herr))
		return &HandlerError{SubscriptionID: s.id, Topic: ev.Topic, Err: herr}
	}
	return nil
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Subscriptions:    n,
		EventsPublished:  b.seq.Load(),
		HandlersExecuted: b.handlersExecuted.Load(),
		HandlerErrors:    b.handlerErrors.Load(),
		HandlerPanics:    b.handlerPanics.Load(),
	}
}

// Close drops every subscription. Later Subscribe and Publish calls
// return ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.subs = nil
	b.mu.Unlock()
}
