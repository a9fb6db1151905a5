package debounce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const testDelay = 40 * time.Millisecond

type recorder struct {
	mu      sync.Mutex
	values  []string
	active  int32
	overlap atomic.Bool
	block   chan struct{}
	err     error
}

func (r *recorder) persist(ctx context.Context, v string) error {
	if atomic.AddInt32(&r.active, 1) > 1 {
		r.overlap.Store(true)
	}
	defer atomic.AddInt32(&r.active, -1)

	r.mu.Lock()
	r.values = append(r.values, v)
	block, err := r.block, r.err
	r.mu.Unlock()

	if block != nil {
		<-block
	}
	return err
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSchedule_CollapsesBurst(t *testing.T) {
	rec := &recorder{}
	c := New(testDelay, rec.persist, WithLogger(zaptest.NewLogger(t)))
	t.Cleanup(c.Close)

	c.Schedule("a")
	c.Schedule("ab")
	c.Schedule("abc")

	waitFor(t, "first write", func() bool { return len(rec.calls()) == 1 })
	time.Sleep(3 * testDelay)

	got := rec.calls()
	if len(got) != 1 || got[0] != "abc" {
		t.Fatalf("expected exactly one write of %q, got %q", "abc", got)
	}
	if _, ok := c.Pending(); ok {
		t.Error("expected pending state to be cleared")
	}
}

func TestSchedule_SeparateWindows(t *testing.T) {
	rec := &recorder{}
	c := New(testDelay, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("first")
	waitFor(t, "first write", func() bool { return len(rec.calls()) == 1 })
	c.Schedule("second")
	waitFor(t, "second write", func() bool { return len(rec.calls()) == 2 })

	got := rec.calls()
	if got[0] != "first" || got[1] != "second" {
		t.Errorf("writes = %q", got)
	}
}

func TestSchedule_RestartsTimer(t *testing.T) {
	rec := &recorder{}
	c := New(testDelay, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("a")
	time.Sleep(testDelay / 2)
	c.Schedule("ab")
	time.Sleep(testDelay * 3 / 4)
	if n := len(rec.calls()); n != 0 {
		t.Fatalf("expected no write before quiescence, got %d", n)
	}
	waitFor(t, "write", func() bool { return len(rec.calls()) == 1 })
	if got := rec.calls()[0]; got != "ab" {
		t.Errorf("write = %q, want %q", got, "ab")
	}
}

func TestSchedule_NoOverlapWhileInFlight(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	c := New(testDelay, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("one")
	waitFor(t, "first write to start", func() bool { return len(rec.calls()) == 1 })

	c.Schedule("two")
	time.Sleep(3 * testDelay)
	if n := len(rec.calls()); n != 1 {
		t.Fatalf("expected the second write to wait for the first, got %d calls", n)
	}
	if v, ok := c.Pending(); !ok || v != "two" {
		t.Fatalf("expected %q to stay pending, got %q (%v)", "two", v, ok)
	}

	rec.mu.Lock()
	block := rec.block
	rec.block = nil
	rec.mu.Unlock()
	close(block)

	waitFor(t, "second write", func() bool { return len(rec.calls()) == 2 })
	if got := rec.calls()[1]; got != "two" {
		t.Errorf("second write = %q", got)
	}
	if rec.overlap.Load() {
		t.Error("writes overlapped")
	}
}

func TestSchedule_FailureIsNotRetried(t *testing.T) {
	boom := errors.New("connection refused")
	rec := &recorder{err: boom}

	var mu sync.Mutex
	var reported []string
	c := New(testDelay, rec.persist, WithErrorHandler(func(v string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if !errors.Is(err, boom) {
			t.Errorf("unexpected error %v", err)
		}
		reported = append(reported, v)
	}))
	t.Cleanup(c.Close)

	c.Schedule("lost")
	waitFor(t, "failed write", func() bool { return len(rec.calls()) == 1 })
	time.Sleep(4 * testDelay)

	if n := len(rec.calls()); n != 1 {
		t.Errorf("expected no retry, got %d calls", n)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 || reported[0] != "lost" {
		t.Errorf("reported = %q", reported)
	}
	if _, ok := c.Pending(); ok {
		t.Error("failed value must be discarded")
	}
}

func TestCancel_DropsPending(t *testing.T) {
	rec := &recorder{}
	c := New(testDelay, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("stale")
	c.Cancel()
	time.Sleep(3 * testDelay)

	if n := len(rec.calls()); n != 0 {
		t.Errorf("expected no write after Cancel, got %d", n)
	}
}

func TestFlush_WritesImmediately(t *testing.T) {
	rec := &recorder{}
	c := New(time.Hour, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("now")
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := rec.calls()
	if len(got) != 1 || got[0] != "now" {
		t.Fatalf("writes = %q", got)
	}

	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if n := len(rec.calls()); n != 1 {
		t.Errorf("Flush with nothing pending wrote %d times", n)
	}
}

func TestFlush_ReturnsError(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{err: boom}
	c := New(time.Hour, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("x")
	if err := c.Flush(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Flush error = %v, want %v", err, boom)
	}
}

func TestFlush_WaitsForInFlight(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	c := New(testDelay, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("one")
	waitFor(t, "first write to start", func() bool { return len(rec.calls()) == 1 })
	c.Schedule("two")

	done := make(chan error, 1)
	go func() { done <- c.Flush(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Flush returned while a write was in flight")
	case <-time.After(2 * testDelay):
	}

	rec.mu.Lock()
	block := rec.block
	rec.block = nil
	rec.mu.Unlock()
	close(block)

	if err := <-done; err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got := rec.calls()
	if len(got) != 2 || got[1] != "two" {
		t.Errorf("writes = %q", got)
	}
	if rec.overlap.Load() {
		t.Error("writes overlapped")
	}
}

func TestFlush_ContextCancelled(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	c := New(testDelay, rec.persist)
	t.Cleanup(func() {
		close(rec.block)
		c.Close()
	})

	c.Schedule("one")
	waitFor(t, "write to start", func() bool { return len(rec.calls()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := c.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush error = %v", err)
	}
}

func TestFlush_ContextCancelledKeepsPending(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	c := New(testDelay, rec.persist)
	t.Cleanup(c.Close)

	c.Schedule("one")
	waitFor(t, "write to start", func() bool { return len(rec.calls()) == 1 })
	c.Schedule("two")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := c.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Flush error = %v", err)
	}

	close(rec.block)
	waitFor(t, "pending value to be written", func() bool { return len(rec.calls()) == 2 })
	if got := rec.calls(); got[1] != "two" {
		t.Errorf("writes = %q, want second write %q", got, "two")
	}
	if _, ok := c.Pending(); ok {
		t.Error("value still pending after the write settled")
	}
	if rec.overlap.Load() {
		t.Error("writes overlapped")
	}
}

func TestClose_RejectsSchedule(t *testing.T) {
	rec := &recorder{}
	c := New(testDelay, rec.persist)

	c.Schedule("before")
	c.Close()
	c.Schedule("after")
	time.Sleep(3 * testDelay)

	if n := len(rec.calls()); n != 0 {
		t.Errorf("expected no writes after Close, got %d", n)
	}
	if err := c.Flush(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Flush after Close = %v", err)
	}
}

func TestNew_DefaultDelay(t *testing.T) {
	c := New(0, func(context.Context, string) error { return nil })
	if c.delay != DefaultDelay {
		t.Errorf("delay = %v, want %v", c.delay, DefaultDelay)
	}
}
