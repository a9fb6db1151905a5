package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/kalambet/racenotes/internal/domain"
)

// AnnotationGateway is the subset of the Gateway client AnnotationStore needs.
type AnnotationGateway interface {
	ListComments(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error)
	CreateComment(ctx context.Context, in domain.NewAnnotation) (domain.Annotation, error)
	UpdateComment(ctx context.Context, id int64, patch domain.AnnotationPatch) (domain.Annotation, error)
	DeleteComment(ctx context.Context, id int64) error
}

// AnnotationStore holds the annotations returned by the last fetch plus any
// created, updated or deleted since.
type AnnotationStore struct {
	gw AnnotationGateway
	o  options

	mu      sync.Mutex
	items   []domain.Annotation
	filter  domain.AnnotationFilter
	loading int
	err     error
}

// NewAnnotationStore creates an empty AnnotationStore.
func NewAnnotationStore(gw AnnotationGateway, opts ...Option) *AnnotationStore {
	if gw == nil {
		panic("store: nil annotation gateway")
	}
	return &AnnotationStore{gw: gw, o: buildOptions(opts)}
}

// All returns the local annotations in fetch order.
func (s *AnnotationStore) All() []domain.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Annotation(nil), s.items...)
}

// Filter returns the filter of the last successful fetch.
func (s *AnnotationStore) Filter() domain.AnnotationFilter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// Loading reports whether an operation is in flight.
func (s *AnnotationStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading > 0
}

// Err returns the last failure, cleared when the next operation starts.
func (s *AnnotationStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *AnnotationStore) begin() {
	s.mu.Lock()
	s.loading++
	s.err = nil
	s.mu.Unlock()
}

func (s *AnnotationStore) finish(err error) {
	s.mu.Lock()
	s.loading--
	if err != nil {
		s.err = err
	}
	s.mu.Unlock()
}

// reject records a local precondition failure without touching the network.
func (s *AnnotationStore) reject(op string, err error) error {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return fail(&s.o, op, err)
}

// Fetch replaces the local collection with the Gateway's result for filter.
func (s *AnnotationStore) Fetch(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error) {
	s.begin()
	items, err := s.gw.ListComments(ctx, filter)
	if err != nil {
		s.finish(err)
		return nil, fail(&s.o, "fetch annotations", err)
	}
	s.mu.Lock()
	s.items = items
	s.filter = filter
	s.mu.Unlock()
	s.finish(nil)
	return append([]domain.Annotation(nil), items...), nil
}

// Create persists a new annotation and appends the server's record.
func (s *AnnotationStore) Create(ctx context.Context, raceID, horseID int64, content string) (*domain.Annotation, error) {
	const op = "create annotation"
	switch {
	case raceID <= 0:
		return nil, s.reject(op, &domain.ValidationError{Field: "race_id", Reason: "must be positive"})
	case horseID <= 0:
		return nil, s.reject(op, &domain.ValidationError{Field: "horse_id", Reason: "must be positive"})
	case strings.TrimSpace(content) == "":
		return nil, s.reject(op, &domain.ValidationError{Field: "content", Reason: "required"})
	}

	s.begin()
	a, err := s.gw.CreateComment(ctx, domain.NewAnnotation{RaceID: raceID, HorseID: horseID, Content: content})
	if err != nil {
		s.finish(err)
		return nil, fail(&s.o, op, err)
	}
	s.mu.Lock()
	s.items = append(s.items, a)
	s.mu.Unlock()
	s.finish(nil)
	return &a, nil
}

// Update applies patch to annotation id and replaces the local record with
// the server's. The id must be present locally.
func (s *AnnotationStore) Update(ctx context.Context, id int64, patch domain.AnnotationPatch) (*domain.Annotation, error) {
	const op = "update annotation"
	if patch.Empty() {
		return nil, s.reject(op, &domain.ValidationError{Field: "patch", Reason: "nothing to update"})
	}
	if !s.has(id) {
		return nil, s.reject(op, &domain.NotFoundError{Kind: "annotation", ID: id})
	}

	s.begin()
	a, err := s.gw.UpdateComment(ctx, id, patch)
	if err != nil {
		s.finish(err)
		return nil, fail(&s.o, op, err)
	}
	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i] = a
		}
	}
	s.mu.Unlock()
	s.finish(nil)
	return &a, nil
}

// Delete removes annotation id remotely and then locally. The id must be
// present locally.
func (s *AnnotationStore) Delete(ctx context.Context, id int64) error {
	const op = "delete annotation"
	if !s.has(id) {
		return s.reject(op, &domain.NotFoundError{Kind: "annotation", ID: id})
	}

	s.begin()
	if err := s.gw.DeleteComment(ctx, id); err != nil {
		s.finish(err)
		return fail(&s.o, op, err)
	}
	s.mu.Lock()
	kept := s.items[:0:0]
	for _, a := range s.items {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	s.items = kept
	s.mu.Unlock()
	s.finish(nil)
	return nil
}

func (s *AnnotationStore) has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.items {
		if a.ID == id {
			return true
		}
	}
	return false
}

// ForHorse returns horseID's annotations, most recently updated first.
func (s *AnnotationStore) ForHorse(horseID int64) []domain.Annotation {
	s.mu.Lock()
	var out []domain.Annotation
	for _, a := range s.items {
		if a.HorseID == horseID {
			out = append(out, a)
		}
	}
	s.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].NewerThan(out[j]) })
	return out
}

// Current returns the annotation edited for horseID: the most recently
// updated one, ties going to the larger id.
func (s *AnnotationStore) Current(horseID int64) (domain.Annotation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best domain.Annotation
	found := false
	for _, a := range s.items {
		if a.HorseID != horseID {
			continue
		}
		if !found || a.NewerThan(best) {
			best = a
			found = true
		}
	}
	return best, found
}

// Reset clears the local collection and error state.
func (s *AnnotationStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.filter = domain.AnnotationFilter{}
	s.err = nil
}
