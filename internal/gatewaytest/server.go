// Package gatewaytest provides an in-memory Gateway for tests. It speaks the
// same HTTP surface as the real service and records every call it receives.
package gatewaytest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/racenotes/internal/domain"
	"github.com/kalambet/racenotes/internal/gateway"
)

// Call is one recorded request.
type Call struct {
	Route  string // "METHOD /pattern", e.g. "PUT /comments/{id}"
	Method string
	URI    string
	Body   string
}

type failure struct {
	status int
	detail string
}

// Server is a fake Gateway backed by maps. All methods are safe for
// concurrent use.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	races       map[string][]domain.Race
	details     map[int64]domain.RaceDetail
	pending     map[string][]domain.Race
	syncResult  domain.SyncResult
	comments    map[int64]domain.Annotation
	nextComment int64
	bets        []domain.BettingOutcome
	nextBet     int64
	stats       []domain.ConditionStats
	kpi         domain.KPI
	recs        []domain.Recommendation
	failures    map[string]failure
	hooks       map[string]func()
	calls       []Call
	now         time.Time
}

// New starts a fake Gateway that is shut down when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		races:      make(map[string][]domain.Race),
		details:    make(map[int64]domain.RaceDetail),
		pending:    make(map[string][]domain.Race),
		comments:   make(map[int64]domain.Annotation),
		failures:   make(map[string]failure),
		hooks:      make(map[string]func()),
		syncResult: domain.SyncResult{Status: domain.SyncSuccess, Message: "sync started"},
		now:        time.Date(2024, 5, 14, 9, 0, 0, 0, time.UTC),
	}

	r := chi.NewRouter()
	s.route(r, http.MethodGet, "/", s.handleRoot)
	s.route(r, http.MethodGet, "/races", s.handleListRaces)
	s.route(r, http.MethodGet, "/races/{id}", s.handleRaceDetail)
	s.route(r, http.MethodPost, "/sync", s.handleSync)
	s.route(r, http.MethodGet, "/comments", s.handleListComments)
	s.route(r, http.MethodPost, "/comments", s.handleCreateComment)
	s.route(r, http.MethodPut, "/comments/{id}", s.handleUpdateComment)
	s.route(r, http.MethodDelete, "/comments/{id}", s.handleDeleteComment)
	s.route(r, http.MethodGet, "/betting", s.handleListBetting)
	s.route(r, http.MethodPost, "/betting", s.handleCreateBetting)
	s.route(r, http.MethodGet, "/stats", s.handleStats)
	s.route(r, http.MethodGet, "/kpi", s.handleKPI)
	s.route(r, http.MethodGet, "/recommendations", s.handleRecommendations)

	s.srv = httptest.NewServer(r)
	t.Cleanup(s.srv.Close)
	return s
}

// URL is the base URL of the fake.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the listener down, making every later call a transport error.
func (s *Server) Close() { s.srv.Close() }

// Client returns a gateway client pointed at the fake.
func (s *Server) Client() *gateway.Client {
	return gateway.New(gateway.Options{BaseURL: s.srv.URL, HTTPClient: s.srv.Client()})
}

func (s *Server) route(r chi.Router, method, pattern string, h func(http.ResponseWriter, *http.Request)) {
	key := method + " " + pattern
	r.MethodFunc(method, pattern, func(w http.ResponseWriter, req *http.Request) {
		var body bytes.Buffer
		if req.Body != nil {
			_, _ = io.Copy(&body, req.Body)
			req.Body = io.NopCloser(bytes.NewReader(body.Bytes()))
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Route: key, Method: method, URI: req.URL.RequestURI(), Body: body.String()})
		hook := s.hooks[key]
		f, failing := s.failures[key]
		s.mu.Unlock()

		if hook != nil {
			hook()
		}
		if failing {
			writeJSON(w, f.status, map[string]string{"detail": f.detail})
			return
		}
		h(w, req)
	})
}

// Fail makes every request to route answer with status and detail until
// Recover is called.
func (s *Server) Fail(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, detail: detail}
}

// Recover clears a failure installed by Fail.
func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// OnRequest runs fn before route is handled. fn may block.
func (s *Server) OnRequest(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[route] = fn
}

// Calls returns every request seen so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the requests that matched route.
func (s *Server) CallsTo(route string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Route == route {
			out = append(out, c)
		}
	}
	return out
}

// SetRaces replaces the races served for date.
func (s *Server) SetRaces(date string, races ...domain.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.races[date] = append([]domain.Race(nil), races...)
}

// SetDetail stores the detail served for d.Race.ID.
func (s *Server) SetDetail(d domain.RaceDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[d.Race.ID] = d
}

// SetUpstream queues races that the next sync for date will ingest.
func (s *Server) SetUpstream(date string, races ...domain.Race) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[date] = append([]domain.Race(nil), races...)
}

// SetSyncResult sets the body returned by the sync endpoint.
func (s *Server) SetSyncResult(r domain.SyncResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncResult = r
}

// AddComment seeds an annotation, assigning id and timestamps when zero.
func (s *Server) AddComment(a domain.Annotation) domain.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		s.nextComment++
		a.ID = s.nextComment
	} else if a.ID > s.nextComment {
		s.nextComment = a.ID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.tick()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	s.comments[a.ID] = a
	return a
}

// Comments returns the stored annotations ordered by id.
func (s *Server) Comments() []domain.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Annotation, 0, len(s.comments))
	for _, c := range s.comments {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Bets returns the recorded betting outcomes.
func (s *Server) Bets() []domain.BettingOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BettingOutcome(nil), s.bets...)
}

// SetKPI sets the KPI body.
func (s *Server) SetKPI(k domain.KPI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kpi = k
}

// SetStats sets the per-condition statistics.
func (s *Server) SetStats(rows ...domain.ConditionStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = rows
}

// SetRecommendations sets the recommendations body.
func (s *Server) SetRecommendations(recs ...domain.Recommendation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = recs
}

// tick advances the fake clock by one second. Callers hold s.mu.
func (s *Server) tick() domain.Timestamp {
	s.now = s.now.Add(time.Second)
	return domain.Timestamp{Time: s.now}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": what + " not found"})
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func queryID(r *http.Request, key string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(key), 10, 64)
	return id
}
