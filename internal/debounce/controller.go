// Package debounce collapses a burst of edits for one target into a single
// trailing write.
package debounce

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDelay is the quiescence window used when New is given a
// non-positive delay.
const DefaultDelay = 2 * time.Second

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("debounce: controller closed")

// PersistFunc writes one value. It is never called concurrently by the same
// Controller.
type PersistFunc func(ctx context.Context, value string) error

// Option configures a Controller.
type Option func(*Controller)

// WithContext sets the context passed to timer-driven persist calls.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = ctx }
}

// WithErrorHandler registers fn to receive every failed write. The failed
// value is discarded after fn returns.
func WithErrorHandler(fn func(value string, err error)) Option {
	return func(c *Controller) { c.onError = fn }
}

// WithLogger sets the logger used for dropped writes.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller owns the quiescence timer for a single target. Only the last
// value scheduled before the timer expires is persisted, writes never
// overlap, and a failed write is not retried.
type Controller struct {
	delay   time.Duration
	persist PersistFunc
	ctx     context.Context
	onError func(string, error)
	logger  *zap.Logger

	mu         sync.Mutex
	timer      *time.Timer
	gen        uint64
	pending    string
	hasPending bool
	due        bool // quiescence reached while a write was in flight
	inFlight   bool
	settled    chan struct{}
	closed     bool
}

// New creates a Controller that calls persist after delay of quiescence.
func New(delay time.Duration, persist PersistFunc, opts ...Option) *Controller {
	if persist == nil {
		panic("debounce: nil persist func")
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	c := &Controller{
		delay:   delay,
		persist: persist,
		ctx:     context.Background(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schedule records value as pending and restarts the quiescence timer.
// It is a no-op after Close.
func (c *Controller) Schedule(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = value
	c.hasPending = true
	c.due = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() { c.expire(gen) })
}

// Cancel drops the pending value and stops the timer. A write already in
// flight is left to finish.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Controller) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = ""
	c.hasPending = false
	c.due = false
}

// Close cancels any pending value and makes later Schedule calls no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.closed = true
}

// Pending returns the value waiting to be written, if any.
func (c *Controller) Pending() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.hasPending
}

// Flush writes the pending value now, first waiting for any in-flight write
// to settle. A failed write is reported to the error handler and returned.
func (c *Controller) Flush(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.due = false
	for c.inFlight {
		settled := c.settled
		c.mu.Unlock()
		select {
		case <-settled:
		case <-ctx.Done():
			c.requeue()
			return ctx.Err()
		}
		c.mu.Lock()
		c.due = false
	}
	if !c.hasPending {
		c.mu.Unlock()
		return nil
	}
	value := c.begin()
	c.mu.Unlock()
	return c.write(ctx, value)
}

// requeue keeps the pending value alive after an abandoned Flush: it is
// written once the in-flight write settles, or after a fresh delay.
func (c *Controller) requeue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.hasPending {
		return
	}
	if c.inFlight {
		c.due = true
		return
	}
	gen := c.gen
	c.timer = time.AfterFunc(c.delay, func() { c.expire(gen) })
}

// expire runs on the timer goroutine.
func (c *Controller) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.hasPending {
		c.mu.Unlock()
		return
	}
	if c.inFlight {
		c.due = true
		c.mu.Unlock()
		return
	}
	value := c.begin()
	c.mu.Unlock()
	_ = c.write(c.ctx, value)
}

// begin claims the pending value for a write. Callers hold c.mu.
func (c *Controller) begin() string {
	value := c.pending
	c.pending = ""
	c.hasPending = false
	c.inFlight = true
	c.settled = make(chan struct{})
	return value
}

// write persists value and then, if another value came due while it was in
// flight, writes that one too.
func (c *Controller) write(ctx context.Context, value string) error {
	first := true
	var firstErr error
	for {
		err := c.persist(ctx, value)
		if err != nil {
			c.logger.Warn("autosave write dropped", zap.Int("length", len(value)), zap.Error(err))
			if c.onError != nil {
				c.onError(value, err)
			}
		}
		if first {
			firstErr = err
			first = false
		}

		c.mu.Lock()
		c.inFlight = false
		close(c.settled)
		c.settled = nil
		if !c.due || !c.hasPending {
			c.due = false
			c.mu.Unlock()
			return firstErr
		}
		c.due = false
		value = c.begin()
		ctx = c.ctx
		c.mu.Unlock()
	}
}
