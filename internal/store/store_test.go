package store

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/gateway"
	"github.com/kalambet/racenotes/internal/gatewaytest"
)

// --- Test helpers ---

type captured struct {
	mu    sync.Mutex
	items []Notification
}

func (c *captured) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, n)
}

func (c *captured) all() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

func (c *captured) last(t *testing.T) Notification {
	t.Helper()
	all := c.all()
	if len(all) == 0 {
		t.Fatal("expected a notification")
	}
	return all[len(all)-1]
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memSnapshots struct {
	mu      sync.Mutex
	lists   map[string][]domain.Race
	details map[int64]domain.RaceDetail
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{lists: map[string][]domain.Race{}, details: map[int64]domain.RaceDetail{}}
}

var errNoSnapshot = errors.New("no snapshot")

func (m *memSnapshots) SaveRaceList(_ context.Context, date, venue string, races []domain.Race) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[date+"|"+venue] = races
	return nil
}

func (m *memSnapshots) RaceList(_ context.Context, date, venue string) ([]domain.Race, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.lists[date+"|"+venue]
	if !ok {
		return nil, errNoSnapshot
	}
	return r, nil
}

func (m *memSnapshots) SaveRaceDetail(_ context.Context, d domain.RaceDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[d.Race.ID] = d
	return nil
}

func (m *memSnapshots) RaceDetail(_ context.Context, id int64) (domain.RaceDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	if !ok {
		return domain.RaceDetail{}, errNoSnapshot
	}
	return d, nil
}

func race(id int64, date, venue string, number int) domain.Race {
	return domain.Race{ID: id, Date: date, Venue: venue, Number: number, Name: "R"}
}

func newRaceStore(t *testing.T, opts ...Option) (*RaceStore, *gatewaytest.Server, *captured) {
	t.Helper()
	gw := gatewaytest.New(t)
	notes := &captured{}
	opts = append([]Option{WithNotifier(notes)}, opts...)
	return NewRaceStore(gw.Client(), opts...), gw, notes
}

func asRemote(t *testing.T, err error) *gateway.RemoteError {
	t.Helper()
	var re *gateway.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %T: %v", err, err)
	}
	return re
}

// --- RaceStore ---

func TestFetchRaces_ReplacesWithoutMerge(t *testing.T) {
	s, gw, _ := newRaceStore(t)
	gw.SetRaces("2024-05-14", race(1, "2024-05-14", "Tokyo", 1), race(2, "2024-05-14", "Kyoto", 2))
	gw.SetRaces("2024-05-15", race(3, "2024-05-15", "Tokyo", 1))
	ctx := context.Background()

	if _, err := s.FetchRaces(ctx, "2024-05-14", ""); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := s.FetchRaces(ctx, "2024-05-15", ""); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	got := s.Races()
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("expected only the second date's races, got %+v", got)
	}
	if s.CurrentDate() != "2024-05-15" {
		t.Errorf("CurrentDate = %q", s.CurrentDate())
	}
}

func TestFetchRaces_UpdatesFilterState(t *testing.T) {
	s, gw, _ := newRaceStore(t)
	gw.SetRaces("2024-05-14", race(1, "2024-05-14", "Tokyo", 1), race(2, "2024-05-14", "Kyoto", 2))

	races, err := s.FetchRaces(context.Background(), "2024-05-14", "Kyoto")
	if err != nil {
		t.Fatalf("FetchRaces: %v", err)
	}
	if len(races) != 1 || races[0].ID != 2 {
		t.Errorf("races = %+v", races)
	}
	st := s.State()
	if st.CurrentDate != "2024-05-14" || st.CurrentVenue != "Kyoto" || st.Loading {
		t.Errorf("state = %+v", st)
	}
}

func TestFetchRaces_DefaultsToCurrentDate(t *testing.T) {
	clock := fixedClock{t: time.Date(2024, 5, 14, 23, 30, 0, 0, time.FixedZone("JST", 9*3600))}
	s, gw, _ := newRaceStore(t, WithClock(clock))

	if got := s.CurrentDate(); got != "2024-05-14" {
		t.Fatalf("initial CurrentDate = %q", got)
	}
	if _, err := s.FetchRaces(context.Background(), "", ""); err != nil {
		t.Fatalf("FetchRaces: %v", err)
	}
	calls := gw.CallsTo("GET /races")
	if len(calls) != 1 || calls[0].URI != "/races?race_date=2024-05-14" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestFetchRaces_FailureKeepsCache(t *testing.T) {
	s, gw, notes := newRaceStore(t)
	gw.SetRaces("2024-05-14", race(1, "2024-05-14", "Tokyo", 1))
	ctx := context.Background()

	if _, err := s.FetchRaces(ctx, "2024-05-14", ""); err != nil {
		t.Fatalf("FetchRaces: %v", err)
	}
	gw.Fail("GET /races", http.StatusInternalServerError, "database is locked")

	races, err := s.FetchRaces(ctx, "2024-05-15", "")
	if races != nil {
		t.Errorf("expected nil result on failure, got %+v", races)
	}
	re := asRemote(t, err)
	if re.Message != "database is locked" {
		t.Errorf("Message = %q", re.Message)
	}

	st := s.State()
	if len(st.Races) != 1 || st.Races[0].ID != 1 {
		t.Errorf("cache was not preserved: %+v", st.Races)
	}
	if st.CurrentDate != "2024-05-14" {
		t.Errorf("CurrentDate changed on failure: %q", st.CurrentDate)
	}
	if st.Err == nil || st.Loading {
		t.Errorf("state = %+v", st)
	}
	n := notes.last(t)
	if n.Kind != Error || n.Op != "fetch races" {
		t.Errorf("notification = %+v", n)
	}
}

func TestFetchRaceDetail_FailureIsolation(t *testing.T) {
	s, gw, _ := newRaceStore(t)
	gw.SetDetail(domain.RaceDetail{
		Race:   race(7, "2024-05-14", "Tokyo", 11),
		Horses: []domain.Horse{{ID: 2, Number: 2}, {ID: 1, Number: 1}},
	})
	ctx := context.Background()

	first, err := s.FetchRaceDetail(ctx, 7)
	if err != nil {
		t.Fatalf("FetchRaceDetail: %v", err)
	}
	if first.Horses[0].Number != 1 {
		t.Errorf("horses not in entry order: %+v", first.Horses)
	}

	gw.Fail("GET /races/{id}", http.StatusBadGateway, "upstream timeout")
	if d, err := s.FetchRaceDetail(ctx, 7); err == nil || d != nil {
		t.Fatalf("expected failure, got %v, %v", d, err)
	}

	if s.Selected() != first {
		t.Error("selected detail was replaced on failure")
	}
	if s.Err() == nil {
		t.Error("expected error state to be populated")
	}
}

func TestFetchRaceDetail_ReplacesWholesale(t *testing.T) {
	s, gw, _ := newRaceStore(t)
	gw.SetDetail(domain.RaceDetail{Race: race(1, "2024-05-14", "Tokyo", 1), Horses: []domain.Horse{{ID: 10, Number: 1}}})
	gw.SetDetail(domain.RaceDetail{Race: race(2, "2024-05-14", "Tokyo", 2)})
	ctx := context.Background()

	if _, err := s.FetchRaceDetail(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchRaceDetail(ctx, 2); err != nil {
		t.Fatal(err)
	}
	sel := s.Selected()
	if sel.Race.ID != 2 || len(sel.Horses) != 0 {
		t.Errorf("selected = %+v", sel)
	}
}

func TestFetchRaceDetail_RejectsBadID(t *testing.T) {
	s, gw, _ := newRaceStore(t)
	_, err := s.FetchRaceDetail(context.Background(), 0)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if n := len(gw.Calls()); n != 0 {
		t.Errorf("expected no gateway calls, got %d", n)
	}
}

func TestSyncRaceData_RefreshesAfterSkipped(t *testing.T) {
	s, gw, notes := newRaceStore(t)
	gw.SetSyncResult(domain.SyncResult{Status: domain.SyncSkipped, Message: "already synced"})
	gw.SetRaces("2024-05-14", race(1, "2024-05-14", "Tokyo", 1))

	res, err := s.SyncRaceData(context.Background(), "2024-05-14", false)
	if err != nil {
		t.Fatalf("SyncRaceData: %v", err)
	}
	if res.Status != domain.SyncSkipped {
		t.Errorf("status = %q", res.Status)
	}

	calls := gw.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected sync then list, got %+v", calls)
	}
	if calls[0].URI != "/sync?force=false&target_date=2024-05-14" {
		t.Errorf("sync call = %q", calls[0].URI)
	}
	if calls[1].Route != "GET /races" || calls[1].URI != "/races?race_date=2024-05-14" {
		t.Errorf("refresh call = %+v", calls[1])
	}
	if len(s.Races()) != 1 {
		t.Errorf("cache not refreshed: %+v", s.Races())
	}
	if n := notes.last(t); n.Kind != Info || n.Op != "sync race data" {
		t.Errorf("notification = %+v", n)
	}
	if s.State().Syncing {
		t.Error("expected syncing flag cleared")
	}
}

func TestSyncRaceData_IngestsUpstream(t *testing.T) {
	s, gw, notes := newRaceStore(t)
	gw.SetUpstream("2024-05-14", race(4, "2024-05-14", "Niigata", 1))

	if _, err := s.SyncRaceData(context.Background(), "2024-05-14", true); err != nil {
		t.Fatalf("SyncRaceData: %v", err)
	}
	if got := s.Races(); len(got) != 1 || got[0].ID != 4 {
		t.Errorf("races = %+v", got)
	}
	if n := notes.all()[0]; n.Kind != Success {
		t.Errorf("notification = %+v", n)
	}
}

func TestSyncRaceData_FailureSkipsRefresh(t *testing.T) {
	s, gw, notes := newRaceStore(t)
	gw.Fail("POST /sync", http.StatusServiceUnavailable, "scraper offline")

	res, err := s.SyncRaceData(context.Background(), "2024-05-14", false)
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if re := asRemote(t, err); re.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", re.StatusCode)
	}
	if n := len(gw.CallsTo("GET /races")); n != 0 {
		t.Errorf("expected no refresh after failed sync, got %d", n)
	}
	if s.Err() == nil {
		t.Error("expected error state")
	}
	n := notes.last(t)
	if n.Kind != Error || n.Op != "sync race data" {
		t.Errorf("notification = %+v", n)
	}
}

func TestSyncRaceData_ErrorStatusIsDistinct(t *testing.T) {
	s, gw, notes := newRaceStore(t)
	gw.SetSyncResult(domain.SyncResult{Status: domain.SyncError, Message: "parse failed"})

	res, err := s.SyncRaceData(context.Background(), "2024-05-14", false)
	if err != nil {
		t.Fatalf("SyncRaceData: %v", err)
	}
	if !res.Failed() {
		t.Errorf("expected failed result, got %+v", res)
	}
	if n := len(gw.CallsTo("GET /races")); n != 1 {
		t.Errorf("expected refresh, got %d list calls", n)
	}
	if n := notes.all()[0]; n.Kind != Error || n.Message != "parse failed" {
		t.Errorf("notification = %+v", n)
	}
}

func TestSyncRaceData_RefreshFailureStillReturnsResult(t *testing.T) {
	s, gw, _ := newRaceStore(t)
	gw.Fail("GET /races", http.StatusInternalServerError, "boom")

	res, err := s.SyncRaceData(context.Background(), "2024-05-14", false)
	if err != nil || res == nil {
		t.Fatalf("expected sync result, got %v, %v", res, err)
	}
	if s.Err() == nil {
		t.Error("expected refresh failure in error state")
	}
}

func TestRaceStore_Snapshots(t *testing.T) {
	snaps := newMemSnapshots()
	s, gw, _ := newRaceStore(t, WithSnapshots(snaps))
	gw.SetRaces("2024-05-14", race(1, "2024-05-14", "Tokyo", 1))
	gw.SetDetail(domain.RaceDetail{Race: race(1, "2024-05-14", "Tokyo", 1)})
	ctx := context.Background()

	if _, err := s.FetchRaces(ctx, "2024-05-14", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FetchRaceDetail(ctx, 1); err != nil {
		t.Fatal(err)
	}

	races, err := s.OfflineRaces(ctx, "2024-05-14", "")
	if err != nil || len(races) != 1 {
		t.Errorf("OfflineRaces = %+v, %v", races, err)
	}
	if _, err := s.OfflineDetail(ctx, 1); err != nil {
		t.Errorf("OfflineDetail: %v", err)
	}

	fresh := NewRaceStore(gw.Client(), WithSnapshots(snaps))
	if !fresh.Warm(ctx, "2024-05-14", "") {
		t.Fatal("expected Warm to load the snapshot")
	}
	if len(fresh.Races()) != 1 || fresh.CurrentDate() != "2024-05-14" {
		t.Errorf("warm state = %+v", fresh.State())
	}
	if fresh.Warm(ctx, "2024-05-14", "") {
		t.Error("Warm must not overwrite a populated cache")
	}
}

func TestRaceStore_OfflineWithoutSnapshots(t *testing.T) {
	s, _, _ := newRaceStore(t)
	if _, err := s.OfflineRaces(context.Background(), "2024-05-14", ""); err == nil {
		t.Error("expected error without snapshots")
	}
	if s.Warm(context.Background(), "2024-05-14", "") {
		t.Error("Warm must fail without snapshots")
	}
}

func TestSetCurrentVenue(t *testing.T) {
	s, _, _ := newRaceStore(t)
	s.SetCurrentVenue("Hanshin")
	if s.CurrentVenue() != "Hanshin" {
		t.Errorf("CurrentVenue = %q", s.CurrentVenue())
	}
}
