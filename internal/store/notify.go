// Package store holds the client-side state containers for races,
// annotations, betting outcomes and statistics. Each store owns its
// collection exclusively and changes it only after the Gateway confirms.
package store

import (
	"time"

	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind int

const (
	Success Kind = iota
	Info
	Warning
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Notification is a user-visible message about a store operation.
type Notification struct {
	Kind    Kind
	Op      string
	Message string
}

// Notifier receives notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(Notification)
}

// NotifyFunc adapts a function to Notifier.
type NotifyFunc func(Notification)

func (f NotifyFunc) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = NotifyFunc(func(Notification) {})

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Option configures a store.
type Option func(*options)

type options struct {
	notifier  Notifier
	logger    *zap.Logger
	clock     Clock
	snapshots Snapshots
	cacheTTL  time.Duration
}

func buildOptions(opts []Option) options {
	o := options{
		notifier: Discard,
		logger:   zap.NewNop(),
		clock:    realClock{},
		cacheTTL: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNotifier routes notifications to n.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for the default race date.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSnapshots persists the last good race list and detail to s.
func WithSnapshots(s Snapshots) Option {
	return func(o *options) { o.snapshots = s }
}

// WithCacheTTL sets how long StatsStore keeps responses.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.cacheTTL = d
		}
	}
}

// fail logs err, emits an error notification for op and returns err.
func fail(o *options, op string, err error) error {
	o.logger.Warn("store operation failed", zap.String("op", op), zap.Error(err))
	o.notifier.Notify(Notification{Kind: Error, Op: op, Message: err.Error()})
	return err
}
