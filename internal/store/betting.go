package store

import (
	"context"
	"sync"

	"github.com/kalambet/racenotes/internal/domain"
)

// BettingGateway is the subset of the Gateway client BettingStore needs.
type BettingGateway interface {
	CreateBetting(ctx context.Context, o domain.BettingOutcome) (domain.BettingOutcome, error)
	ListBetting(ctx context.Context, raceID int64) ([]domain.BettingOutcome, error)
}

// BettingStore records betting outcomes and keeps the last listed set.
type BettingStore struct {
	gw       BettingGateway
	o        options
	onRecord func()

	mu       sync.Mutex
	outcomes []domain.BettingOutcome
	err      error
}

// NewBettingStore creates an empty BettingStore.
func NewBettingStore(gw BettingGateway, opts ...Option) *BettingStore {
	if gw == nil {
		panic("store: nil betting gateway")
	}
	return &BettingStore{gw: gw, o: buildOptions(opts)}
}

// OnRecord registers fn to run after every successful Record.
func (s *BettingStore) OnRecord(fn func()) { s.onRecord = fn }

// Err returns the last failure.
func (s *BettingStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *BettingStore) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Record validates o through domain.NewBettingOutcome and persists it.
func (s *BettingStore) Record(ctx context.Context, o domain.BettingOutcome) (*domain.BettingOutcome, error) {
	const op = "record betting outcome"
	s.setErr(nil)
	valid, err := domain.NewBettingOutcome(o.RaceID, o.BetType, o.Numbers, o.Amount, o.IsWon, o.Payout)
	if err != nil {
		s.setErr(err)
		return nil, fail(&s.o, op, err)
	}
	saved, err := s.gw.CreateBetting(ctx, valid)
	if err != nil {
		s.setErr(err)
		return nil, fail(&s.o, op, err)
	}
	s.mu.Lock()
	s.outcomes = append(s.outcomes, saved)
	s.mu.Unlock()
	s.o.notifier.Notify(Notification{Kind: Success, Op: op, Message: "betting outcome recorded"})
	if s.onRecord != nil {
		s.onRecord()
	}
	return &saved, nil
}

// List replaces the local outcomes with those recorded for raceID, or all
// outcomes when raceID is 0.
func (s *BettingStore) List(ctx context.Context, raceID int64) ([]domain.BettingOutcome, error) {
	s.setErr(nil)
	out, err := s.gw.ListBetting(ctx, raceID)
	if err != nil {
		s.setErr(err)
		return nil, fail(&s.o, "list betting outcomes", err)
	}
	s.mu.Lock()
	s.outcomes = out
	s.mu.Unlock()
	return append([]domain.BettingOutcome(nil), out...), nil
}

// Outcomes returns the local outcomes.
func (s *BettingStore) Outcomes() []domain.BettingOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BettingOutcome(nil), s.outcomes...)
}

// Summary aggregates the local outcomes.
func (s *BettingStore) Summary() domain.Summary {
	return domain.Summarize(s.Outcomes())
}
