// Package editor autosaves free-text annotations for the horses of one race.
// Each selected horse gets its own debounce controller, cancelled as soon as
// another horse is selected so a pending write never lands on the wrong
// target.
package editor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kalambet/racenotes/internal/debounce"
	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/store"
)

// ErrNoTarget is returned by Edit when no horse is selected.
var ErrNoTarget = errors.New("editor: no horse selected")

// Annotations is the subset of store.AnnotationStore the editor drives.
type Annotations interface {
	Current(horseID int64) (domain.Annotation, bool)
	Create(ctx context.Context, raceID, horseID int64, content string) (*domain.Annotation, error)
	Update(ctx context.Context, id int64, patch domain.AnnotationPatch) (*domain.Annotation, error)
	Delete(ctx context.Context, id int64) error
}

// Option configures an Editor.
type Option func(*Editor)

// WithDelay sets the autosave quiescence window.
func WithDelay(d time.Duration) Option {
	return func(e *Editor) { e.delay = d }
}

// WithNotifier routes save confirmations to n.
func WithNotifier(n store.Notifier) Option {
	return func(e *Editor) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithLogger sets the editor logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithContext sets the context used for timer-driven saves.
func WithContext(ctx context.Context) Option {
	return func(e *Editor) { e.ctx = ctx }
}

// Editor tracks the selected horse and the annotation that edits apply to.
type Editor struct {
	raceID   int64
	notes    Annotations
	delay    time.Duration
	notifier store.Notifier
	logger   *zap.Logger
	ctx      context.Context

	mu     sync.Mutex
	horse  int64
	id     int64
	ctrl   *debounce.Controller
	closed bool
}

// New creates an Editor for raceID. The annotation store should already
// hold the race's annotations.
func New(raceID int64, notes Annotations, opts ...Option) *Editor {
	if notes == nil {
		panic("editor: nil annotations")
	}
	e := &Editor{
		raceID:   raceID,
		notes:    notes,
		delay:    debounce.DefaultDelay,
		notifier: store.Discard,
		logger:   zap.NewNop(),
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Select makes horseID the edit target and returns the content of its
// current annotation, or "" when it has none. Any write pending for the
// previous horse is dropped.
func (e *Editor) Select(horseID int64) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl != nil {
		e.ctrl.Close()
		e.ctrl = nil
	}
	if e.closed {
		return ""
	}

	e.horse = horseID
	e.id = 0
	content := ""
	if cur, ok := e.notes.Current(horseID); ok {
		e.id = cur.ID
		content = cur.Content
	}
	e.ctrl = debounce.New(e.delay,
		func(ctx context.Context, text string) error { return e.save(ctx, horseID, text) },
		debounce.WithContext(e.ctx),
		debounce.WithLogger(e.logger.With(zap.Int64("race_id", e.raceID), zap.Int64("horse_id", horseID))),
	)
	return content
}

// Target returns the selected horse and the id of the annotation being
// edited, 0 when the next save will create one.
func (e *Editor) Target() (horseID, annotationID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.horse, e.id
}

// Edit schedules text to be saved once edits go quiet.
func (e *Editor) Edit(text string) error {
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()
	if ctrl == nil {
		return ErrNoTarget
	}
	ctrl.Schedule(text)
	return nil
}

// Flush saves any pending edit now.
func (e *Editor) Flush(ctx context.Context) error {
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()
	if ctrl == nil {
		return nil
	}
	return ctrl.Flush(ctx)
}

// Delete drops any pending edit and deletes the current annotation. The
// next most recent annotation for the horse, if any, becomes current.
func (e *Editor) Delete(ctx context.Context) error {
	e.mu.Lock()
	if e.ctrl != nil {
		e.ctrl.Cancel()
	}
	horse, id := e.horse, e.id
	e.mu.Unlock()
	if id == 0 {
		return &domain.NotFoundError{Kind: "annotation", ID: 0}
	}

	if err := e.notes.Delete(ctx, id); err != nil {
		return err
	}
	e.mu.Lock()
	if e.horse == horse {
		e.id = 0
		if cur, ok := e.notes.Current(horse); ok {
			e.id = cur.ID
		}
	}
	e.mu.Unlock()
	e.notifier.Notify(store.Notification{Kind: store.Success, Op: "delete annotation", Message: "annotation deleted"})
	return nil
}

// Close drops any pending edit. The editor accepts no further edits.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctrl != nil {
		e.ctrl.Close()
		e.ctrl = nil
	}
	e.closed = true
}

func (e *Editor) save(ctx context.Context, horse int64, text string) error {
	e.mu.Lock()
	if e.horse != horse {
		e.mu.Unlock()
		return nil
	}
	id := e.id
	e.mu.Unlock()

	if id != 0 {
		if _, err := e.notes.Update(ctx, id, domain.ContentPatch(text)); err != nil {
			return err
		}
	} else {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		a, err := e.notes.Create(ctx, e.raceID, horse, text)
		if err != nil {
			return err
		}
		e.mu.Lock()
		if e.horse == horse {
			e.id = a.ID
		}
		e.mu.Unlock()
	}
	e.notifier.Notify(store.Notification{Kind: store.Success, Op: "save annotation", Message: "annotation saved"})
	return nil
}
