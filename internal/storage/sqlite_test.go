package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/racenotes/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same directory and checks
// that no migration is applied twice.
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestParseMigrationVersion(t *testing.T) {
	tests := []struct {
		name    string
		want    int
		wantErr bool
	}{
		{"001_init.sql", 1, false},
		{"012_add_index.sql", 12, false},
		{"init.sql", 0, true},
	}
	for _, tt := range tests {
		got, err := parseMigrationVersion(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseMigrationVersion(%q) error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("parseMigrationVersion(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRaceList_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	cond := "good"
	races := []domain.Race{
		{ID: 1, RaceID: "202405140101", Date: "2024-05-14", Venue: "Tokyo", Number: 1, TrackCondition: &cond},
		{ID: 2, RaceID: "202405140102", Date: "2024-05-14", Venue: "Tokyo", Number: 2},
	}

	if err := s.SaveRaceList(ctx, "2024-05-14", "Tokyo", races); err != nil {
		t.Fatalf("SaveRaceList: %v", err)
	}
	got, err := s.RaceList(ctx, "2024-05-14", "Tokyo")
	if err != nil {
		t.Fatalf("RaceList: %v", err)
	}
	if len(got) != 2 || got[0].TrackCondition == nil || *got[0].TrackCondition != "good" || got[1].Weather != nil {
		t.Errorf("RaceList = %+v", got)
	}

	if _, err := s.RaceList(ctx, "2024-05-14", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("different venue filter = %v, want ErrNotFound", err)
	}
}

func TestRaceList_Overwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveRaceList(ctx, "2024-05-14", "", []domain.Race{{ID: 1}, {ID: 2}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRaceList(ctx, "2024-05-14", "", nil); err != nil {
		t.Fatal(err)
	}
	got, err := s.RaceList(ctx, "2024-05-14", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected the empty list to replace the old one, got %+v", got)
	}
}

func TestRaceDetail_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	odds := 3.4
	d := domain.RaceDetail{
		Race:   domain.Race{ID: 9, Name: "Victoria Mile"},
		Horses: []domain.Horse{{ID: 1, Number: 1, Name: "Almond Eye", Odds: &odds}},
	}

	if err := s.SaveRaceDetail(ctx, d); err != nil {
		t.Fatalf("SaveRaceDetail: %v", err)
	}
	got, err := s.RaceDetail(ctx, 9)
	if err != nil {
		t.Fatalf("RaceDetail: %v", err)
	}
	if got.Race.Name != "Victoria Mile" || len(got.Horses) != 1 || *got.Horses[0].Odds != odds {
		t.Errorf("RaceDetail = %+v", got)
	}
	if _, err := s.RaceDetail(ctx, 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing detail = %v", err)
	}
	if err := s.SaveRaceDetail(ctx, domain.RaceDetail{}); err == nil {
		t.Error("expected error for detail without race id")
	}
}

func TestSnapshotDates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, d := range []string{"2024-05-12", "2024-05-14", "2024-05-13"} {
		if err := s.SaveRaceList(ctx, d, "", nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveRaceList(ctx, "2024-05-14", "Tokyo", nil); err != nil {
		t.Fatal(err)
	}

	dates, err := s.SnapshotDates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2024-05-14", "2024-05-13", "2024-05-12"}
	if len(dates) != len(want) {
		t.Fatalf("dates = %v", dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Errorf("dates[%d] = %q, want %q", i, dates[i], want[i])
		}
	}
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	if err := s.SaveRaceList(ctx, "2024-05-01", "", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveRaceDetail(ctx, domain.RaceDetail{Race: domain.Race{ID: 1}}); err != nil {
		t.Fatal(err)
	}
	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	if err := s.SaveRaceList(ctx, "2024-05-03", "", nil); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("pruned %d rows, want 2", n)
	}
	if _, err := s.RaceList(ctx, "2024-05-03", ""); err != nil {
		t.Errorf("recent snapshot removed: %v", err)
	}
}
