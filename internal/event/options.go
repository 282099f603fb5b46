package event

import "go.uber.org/zap"

// Option configures a Bus.
type Option func(*Bus)

// PanicHandler is called when a handler panics. The panic is also
// reported as a *PanicError from Publish.
type PanicHandler func(ev Event, err *PanicError)

// WithLogger sets the logger used for handler failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPanicHandler sets a callback for recovered handler panics.
func WithPanicHandler(h PanicHandler) Option {
	return func(b *Bus) {
		b.onPanic = h
	}
}
