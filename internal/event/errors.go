package event

import (
	"errors"
	"fmt"

	"github.com/dshills/pixelstorm/internal/event/topic"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidTopic is returned when a topic is empty or malformed.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrSubscriptionNotFound is returned when trying to unsubscribe a non-existent subscription.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrBusClosed is returned by operations on a closed bus.
	ErrBusClosed = errors.New("event bus is closed")
)

// HandlerError wraps an error from a handler with additional context.
type HandlerError struct {
	SubscriptionID uint64
	Topic          topic.Topic
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error for subscription %d on topic %s: %v", e.SubscriptionID, e.Topic, e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// PanicError records a recovered handler panic.
type PanicError struct {
	SubscriptionID uint64
	Topic          topic.Topic
	Value          any
	Stack          []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler for subscription %d panicked on topic %s: %v", e.SubscriptionID, e.Topic, e.Value)
}
