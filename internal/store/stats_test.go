package store

import (
	"context"
	"net/http"
	"testing"

	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/gatewaytest"
)

func TestStatsStore_CachesUntilInvalidated(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetKPI(domain.KPI{ROI: 112.5, BetCount: 8})
	s := NewStatsStore(gw.Client())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		k, err := s.KPI(ctx, "2024-01-01", "")
		if err != nil {
			t.Fatalf("KPI: %v", err)
		}
		if k.BetCount != 8 {
			t.Errorf("KPI = %+v", k)
		}
	}
	if n := len(gw.CallsTo("GET /kpi")); n != 1 {
		t.Errorf("expected one KPI request, got %d", n)
	}

	s.Invalidate()
	if _, err := s.KPI(ctx, "2024-01-01", ""); err != nil {
		t.Fatal(err)
	}
	if n := len(gw.CallsTo("GET /kpi")); n != 2 {
		t.Errorf("expected a refetch after Invalidate, got %d requests", n)
	}
}

func TestStatsStore_KeysByFilter(t *testing.T) {
	gw := gatewaytest.New(t)
	gw.SetStats(
		domain.ConditionStats{Category: "venue", Condition: "Tokyo", ROI: 130},
		domain.ConditionStats{Category: "distance", Condition: "1600", ROI: 90},
	)
	s := NewStatsStore(gw.Client())
	ctx := context.Background()

	venue, err := s.Stats(ctx, domain.StatsFilter{Category: "venue"})
	if err != nil {
		t.Fatal(err)
	}
	all, err := s.Stats(ctx, domain.StatsFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(venue) != 1 || len(all) != 2 {
		t.Errorf("venue = %d rows, all = %d rows", len(venue), len(all))
	}
}

func TestStatsStore_FailureNotCached(t *testing.T) {
	gw := gatewaytest.New(t)
	notes := &captured{}
	s := NewStatsStore(gw.Client(), WithNotifier(notes))
	ctx := context.Background()

	gw.Fail("GET /recommendations", http.StatusInternalServerError, "boom")
	if _, err := s.Recommendations(ctx, "2024-05-14"); err == nil {
		t.Fatal("expected failure")
	}
	if n := notes.last(t); n.Kind != Error || n.Op != "fetch recommendations" {
		t.Errorf("notification = %+v", n)
	}

	gw.Recover("GET /recommendations")
	if _, err := s.Recommendations(ctx, "2024-05-14"); err != nil {
		t.Fatalf("after recover: %v", err)
	}
}
