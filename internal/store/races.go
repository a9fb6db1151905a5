package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/kalambet/racenotes/internal/domain"
)

// DateLayout is the race date format used on the wire.
const DateLayout = "2006-01-02"

// RaceGateway is the subset of the Gateway client RaceStore needs.
type RaceGateway interface {
	ListRaces(ctx context.Context, date, venue string) ([]domain.Race, error)
	GetRaceDetail(ctx context.Context, id int64) (domain.RaceDetail, error)
	Sync(ctx context.Context, date string, force bool) (domain.SyncResult, error)
}

// Snapshots keeps the last good race data on disk. Implemented by
// storage.Store.
type Snapshots interface {
	SaveRaceList(ctx context.Context, date, venue string, races []domain.Race) error
	RaceList(ctx context.Context, date, venue string) ([]domain.Race, error)
	SaveRaceDetail(ctx context.Context, d domain.RaceDetail) error
	RaceDetail(ctx context.Context, id int64) (domain.RaceDetail, error)
}

// RaceState is a point-in-time copy of RaceStore's fields.
type RaceState struct {
	Races        []domain.Race
	Selected     *domain.RaceDetail
	CurrentDate  string
	CurrentVenue string
	Loading      bool
	Syncing      bool
	Err          error
}

// RaceStore caches the race list for one date/venue filter and the
// currently selected race detail.
//
// Concurrent FetchRaces calls are not sequenced: whichever resolves last
// determines the cached list.
type RaceStore struct {
	gw RaceGateway
	o  options

	mu       sync.Mutex
	races    []domain.Race
	selected *domain.RaceDetail
	date     string
	venue    string
	loading  int
	syncing  bool
	err      error
}

// NewRaceStore creates an empty RaceStore whose current date is today (UTC).
func NewRaceStore(gw RaceGateway, opts ...Option) *RaceStore {
	if gw == nil {
		panic("store: nil race gateway")
	}
	s := &RaceStore{gw: gw, o: buildOptions(opts)}
	s.date = s.o.clock.Now().UTC().Format(DateLayout)
	return s
}

// State returns a copy of the store's fields. Selected is shared and must
// not be modified.
func (s *RaceStore) State() RaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RaceState{
		Races:        append([]domain.Race(nil), s.races...),
		Selected:     s.selected,
		CurrentDate:  s.date,
		CurrentVenue: s.venue,
		Loading:      s.loading > 0,
		Syncing:      s.syncing,
		Err:          s.err,
	}
}

// Races returns the cached race list.
func (s *RaceStore) Races() []domain.Race {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Race(nil), s.races...)
}

// Selected returns the selected race detail, or nil.
func (s *RaceStore) Selected() *domain.RaceDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// CurrentDate returns the date of the last successful list fetch.
func (s *RaceStore) CurrentDate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

// CurrentVenue returns the venue filter, or "" for all venues.
func (s *RaceStore) CurrentVenue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.venue
}

// SetCurrentVenue changes the venue filter without fetching.
func (s *RaceStore) SetCurrentVenue(venue string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.venue = venue
}

// Err returns the last failure, cleared when the next operation starts.
func (s *RaceStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *RaceStore) begin() {
	s.mu.Lock()
	s.loading++
	s.err = nil
	s.mu.Unlock()
}

func (s *RaceStore) finish(err error) {
	s.mu.Lock()
	s.loading--
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

// FetchRaces replaces the cached list with the races held on date at venue.
// An empty date means the current date; an empty venue means all venues.
// On failure the previous list is kept.
func (s *RaceStore) FetchRaces(ctx context.Context, date, venue string) ([]domain.Race, error) {
	if date == "" {
		date = s.CurrentDate()
	}
	s.begin()
	races, err := s.gw.ListRaces(ctx, date, venue)
	if err != nil {
		s.finish(err)
		return nil, fail(&s.o, "fetch races", err)
	}

	s.mu.Lock()
	s.races = races
	s.date = date
	s.venue = venue
	s.mu.Unlock()
	s.finish(nil)

	if s.o.snapshots != nil {
		if err := s.o.snapshots.SaveRaceList(context.WithoutCancel(ctx), date, venue, races); err != nil {
			s.o.logger.Warn("saving race list snapshot", zap.String("date", date), zap.Error(err))
		}
	}
	return append([]domain.Race(nil), races...), nil
}

// FetchRaceDetail replaces the selected detail with race id. On failure the
// previous detail is kept untouched.
func (s *RaceStore) FetchRaceDetail(ctx context.Context, id int64) (*domain.RaceDetail, error) {
	if id <= 0 {
		err := &domain.ValidationError{Field: "race_id", Reason: "must be positive"}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return nil, fail(&s.o, "fetch race detail", err)
	}
	s.begin()
	d, err := s.gw.GetRaceDetail(ctx, id)
	if err != nil {
		s.finish(err)
		return nil, fail(&s.o, "fetch race detail", err)
	}

	detail := &d
	s.mu.Lock()
	s.selected = detail
	s.mu.Unlock()
	s.finish(nil)

	if s.o.snapshots != nil {
		if err := s.o.snapshots.SaveRaceDetail(context.WithoutCancel(ctx), d); err != nil {
			s.o.logger.Warn("saving race detail snapshot", zap.Int64("race_id", id), zap.Error(err))
		}
	}
	return detail, nil
}

// SyncRaceData asks the Gateway to ingest date and then refreshes the list
// for that date across all venues. The refresh runs whatever status the sync
// reports; a refresh failure is recorded in Err but the result is still
// returned. A failed sync skips the refresh.
func (s *RaceStore) SyncRaceData(ctx context.Context, date string, force bool) (*domain.SyncResult, error) {
	if date == "" {
		date = s.CurrentDate()
	}
	s.mu.Lock()
	s.syncing = true
	s.err = nil
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.syncing = false
		s.mu.Unlock()
	}()

	res, err := s.gw.Sync(ctx, date, force)
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return nil, fail(&s.o, "sync race data", fmt.Errorf("sync failed: %w", err))
	}
	s.notifySync(date, res)

	// Refresh failures are already recorded and notified by FetchRaces.
	_, _ = s.FetchRaces(ctx, date, "")
	return &res, nil
}

func (s *RaceStore) notifySync(date string, res domain.SyncResult) {
	n := Notification{Op: "sync race data", Message: res.Message}
	switch res.Status {
	case domain.SyncError:
		n.Kind = Error
	case domain.SyncSkipped, domain.SyncNoData:
		n.Kind = Info
	default:
		n.Kind = Success
	}
	if n.Message == "" {
		n.Message = fmt.Sprintf("%s: %s", date, res.Status)
	}
	s.o.notifier.Notify(n)
}

// Warm fills an empty cache from the snapshot for date and venue without
// touching the network. It reports whether anything was loaded.
func (s *RaceStore) Warm(ctx context.Context, date, venue string) bool {
	if s.o.snapshots == nil {
		return false
	}
	s.mu.Lock()
	empty := len(s.races) == 0
	s.mu.Unlock()
	if !empty {
		return false
	}
	races, err := s.o.snapshots.RaceList(ctx, date, venue)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.races) != 0 {
		return false
	}
	s.races = races
	s.date = date
	s.venue = venue
	return true
}

// OfflineRaces reads the race list snapshot for date and venue.
func (s *RaceStore) OfflineRaces(ctx context.Context, date, venue string) ([]domain.Race, error) {
	if s.o.snapshots == nil {
		return nil, fmt.Errorf("offline race list: snapshots disabled")
	}
	races, err := s.o.snapshots.RaceList(ctx, date, venue)
	if err != nil {
		return nil, fmt.Errorf("offline race list %s: %w", date, err)
	}
	return races, nil
}

// OfflineDetail reads the race detail snapshot for id.
func (s *RaceStore) OfflineDetail(ctx context.Context, id int64) (domain.RaceDetail, error) {
	if s.o.snapshots == nil {
		return domain.RaceDetail{}, fmt.Errorf("offline race detail: snapshots disabled")
	}
	d, err := s.o.snapshots.RaceDetail(ctx, id)
	if err != nil {
		return domain.RaceDetail{}, fmt.Errorf("offline race detail %d: %w", id, err)
	}
	return d, nil
}
