package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kalambet/racenotes/internal/config"
	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/gatewaytest"
	"github.com/kalambet/racenotes/internal/store"
)

func testConfig(t *testing.T, baseURL string, snapshots bool) config.Config {
	t.Helper()
	return config.Config{
		Gateway:  config.GatewayConfig{BaseURL: baseURL, Timeout: 2 * time.Second},
		Autosave: config.AutosaveConfig{Delay: 20 * time.Millisecond},
		Storage:  config.StorageConfig{DataDir: t.TempDir(), Snapshots: snapshots},
		Stats:    config.StatsConfig{CacheTTL: time.Minute},
		Log:      config.LogConfig{Level: "debug"},
	}
}

func newApp(t *testing.T, snapshots bool) (*App, *gatewaytest.Server) {
	t.Helper()
	gw := gatewaytest.New(t)
	a, err := New(testConfig(t, gw.URL(), snapshots), zaptest.NewLogger(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, gw
}

func TestLoadRacePage(t *testing.T) {
	a, gw := newApp(t, true)
	gw.SetDetail(domain.RaceDetail{
		Race:   domain.Race{ID: 3, Name: "Oaks"},
		Horses: []domain.Horse{{ID: 30, Number: 1}},
	})
	gw.AddComment(domain.Annotation{RaceID: 3, HorseID: 30, Content: "stays"})
	gw.AddComment(domain.Annotation{RaceID: 4, HorseID: 40, Content: "other race"})

	page, err := a.LoadRacePage(context.Background(), 3)
	if err != nil {
		t.Fatalf("LoadRacePage: %v", err)
	}
	if page.Detail == nil || page.Detail.Race.Name != "Oaks" {
		t.Errorf("detail = %+v", page.Detail)
	}
	if len(page.Annotations) != 1 || page.Annotations[0].Content != "stays" {
		t.Errorf("annotations = %+v", page.Annotations)
	}
	if a.Races.Selected() != page.Detail {
		t.Error("race store selection not updated")
	}
	if _, err := a.Snapshots.RaceDetail(context.Background(), 3); err != nil {
		t.Errorf("detail snapshot missing: %v", err)
	}
}

func TestLoadRacePage_Failure(t *testing.T) {
	a, gw := newApp(t, false)
	gw.Fail("GET /races/{id}", http.StatusNotFound, "Race not found")

	if _, err := a.LoadRacePage(context.Background(), 3); err == nil {
		t.Fatal("expected error")
	}
	if a.Snapshots != nil {
		t.Error("snapshots should be disabled")
	}
}

func TestLoadRacePage_AnnotationFailureLeavesDetail(t *testing.T) {
	gw := gatewaytest.New(t)
	var mu sync.Mutex
	var notes []store.Notification
	notifier := store.NotifyFunc(func(n store.Notification) {
		mu.Lock()
		defer mu.Unlock()
		notes = append(notes, n)
	})
	a, err := New(testConfig(t, gw.URL(), false), zaptest.NewLogger(t), notifier)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Close() })

	gw.SetDetail(domain.RaceDetail{Race: domain.Race{ID: 3, Name: "Oaks"}})
	gw.Fail("GET /comments", http.StatusInternalServerError, "db down")
	gw.OnRequest("GET /races/{id}", func() { time.Sleep(100 * time.Millisecond) })

	if _, err := a.LoadRacePage(context.Background(), 3); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("err = %v, want the annotations failure", err)
	}
	if err := a.Races.Err(); err != nil {
		t.Errorf("race store error = %v, want nil", err)
	}
	if d := a.Races.Selected(); d == nil || d.Race.Name != "Oaks" {
		t.Errorf("selected = %+v, want the fetched detail", d)
	}

	mu.Lock()
	defer mu.Unlock()
	var failed []string
	for _, n := range notes {
		if n.Kind == store.Error {
			failed = append(failed, n.Op)
		}
	}
	if len(failed) != 1 || failed[0] != "fetch annotations" {
		t.Errorf("error notifications = %q, want only fetch annotations", failed)
	}
}

func TestBettingInvalidatesStats(t *testing.T) {
	a, gw := newApp(t, false)
	ctx := context.Background()
	if _, err := a.Stats.KPI(ctx, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Betting.Record(ctx, domain.BettingOutcome{RaceID: 1, BetType: domain.BetWin, Numbers: "1", Amount: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Stats.KPI(ctx, "", ""); err != nil {
		t.Fatal(err)
	}
	if n := len(gw.CallsTo("GET /kpi")); n != 2 {
		t.Errorf("expected the KPI cache to be dropped after a bet, got %d requests", n)
	}
}

func TestNewEditor_UsesConfiguredDelay(t *testing.T) {
	a, gw := newApp(t, false)
	ctx := context.Background()
	if _, err := a.Annotations.Fetch(ctx, domain.AnnotationFilter{RaceID: 1}); err != nil {
		t.Fatal(err)
	}

	e := a.NewEditor(ctx, 1)
	defer e.Close()
	e.Select(5)
	if err := e.Edit("first note"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(gw.CallsTo("POST /comments")) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(gw.CallsTo("POST /comments")) != 1 {
		t.Fatal("autosave did not fire")
	}
}
