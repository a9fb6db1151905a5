package store

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kalambet/racenotes/internal/domain"
)

// StatsGateway is the subset of the Gateway client StatsStore needs.
type StatsGateway interface {
	Stats(ctx context.Context, f domain.StatsFilter) ([]domain.ConditionStats, error)
	KPI(ctx context.Context, from, to string) (domain.KPI, error)
	Recommendations(ctx context.Context, date string) ([]domain.Recommendation, error)
}

// StatsStore is a read-through TTL cache over the statistics endpoints.
type StatsStore struct {
	gw    StatsGateway
	o     options
	cache *gocache.Cache
}

// NewStatsStore creates a StatsStore that keeps responses for the
// configured cache TTL.
func NewStatsStore(gw StatsGateway, opts ...Option) *StatsStore {
	if gw == nil {
		panic("store: nil stats gateway")
	}
	o := buildOptions(opts)
	return &StatsStore{gw: gw, o: o, cache: gocache.New(o.cacheTTL, 2*o.cacheTTL)}
}

// Invalidate drops every cached response.
func (s *StatsStore) Invalidate() { s.cache.Flush() }

// KPI returns the return summary between from and to.
func (s *StatsStore) KPI(ctx context.Context, from, to string) (domain.KPI, error) {
	key := fmt.Sprintf("kpi|%s|%s", from, to)
	if v, ok := s.cache.Get(key); ok {
		return v.(domain.KPI), nil
	}
	k, err := s.gw.KPI(ctx, from, to)
	if err != nil {
		return domain.KPI{}, fail(&s.o, "fetch kpi", err)
	}
	s.cache.SetDefault(key, k)
	return k, nil
}

// Stats returns per-condition statistics for f.
func (s *StatsStore) Stats(ctx context.Context, f domain.StatsFilter) ([]domain.ConditionStats, error) {
	key := fmt.Sprintf("stats|%s|%s|%s", f.Category, f.From, f.To)
	if v, ok := s.cache.Get(key); ok {
		return append([]domain.ConditionStats(nil), v.([]domain.ConditionStats)...), nil
	}
	rows, err := s.gw.Stats(ctx, f)
	if err != nil {
		return nil, fail(&s.o, "fetch stats", err)
	}
	s.cache.SetDefault(key, rows)
	return append([]domain.ConditionStats(nil), rows...), nil
}

// Recommendations returns the races on date matching profitable conditions.
func (s *StatsStore) Recommendations(ctx context.Context, date string) ([]domain.Recommendation, error) {
	key := "recs|" + date
	if v, ok := s.cache.Get(key); ok {
		return append([]domain.Recommendation(nil), v.([]domain.Recommendation)...), nil
	}
	recs, err := s.gw.Recommendations(ctx, date)
	if err != nil {
		return nil, fail(&s.o, "fetch recommendations", err)
	}
	s.cache.SetDefault(key, recs)
	return append([]domain.Recommendation(nil), recs...), nil
}
