package gatewaytest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/kalambet/racenotes/internal/domain"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "race data gateway"})
}

func (s *Server) handleListRaces(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("race_date")
	venue := r.URL.Query().Get("venue")

	s.mu.Lock()
	out := []domain.Race{}
	for _, race := range s.races[date] {
		if venue == "" || race.Venue == venue {
			out = append(out, race)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRaceDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		notFound(w, "Race")
		return
	}
	s.mu.Lock()
	d, ok := s.details[id]
	s.mu.Unlock()
	if !ok {
		notFound(w, "Race")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("target_date")
	if date == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]string{{"msg": "field required"}},
		})
		return
	}
	s.mu.Lock()
	if races, ok := s.pending[date]; ok {
		s.races[date] = races
		delete(s.pending, date)
	}
	res := s.syncResult
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	raceID := queryID(r, "race_id")
	horseID := queryID(r, "horse_id")

	s.mu.Lock()
	out := []domain.Annotation{}
	for _, c := range s.comments {
		if raceID > 0 && c.RaceID != raceID {
			continue
		}
		if horseID > 0 && c.HorseID != horseID {
			continue
		}
		out = append(out, c)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].ID > out[j].ID
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var in domain.NewAnnotation
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RaceID == 0 || in.HorseID == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid comment"})
		return
	}
	s.mu.Lock()
	s.nextComment++
	now := s.tick()
	c := domain.Annotation{
		ID:        s.nextComment,
		RaceID:    in.RaceID,
		HorseID:   in.HorseID,
		Content:   in.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.comments[c.ID] = c
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	id, _ := idParam(r)
	var patch domain.AnnotationPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid patch"})
		return
	}
	s.mu.Lock()
	c, ok := s.comments[id]
	if ok {
		if patch.Content != nil {
			c.Content = *patch.Content
		}
		if patch.IsPublic != nil {
			c.IsPublic = *patch.IsPublic
		}
		c.UpdatedAt = s.tick()
		s.comments[id] = c
	}
	s.mu.Unlock()
	if !ok {
		notFound(w, "Comment")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, _ := idParam(r)
	s.mu.Lock()
	_, ok := s.comments[id]
	delete(s.comments, id)
	s.mu.Unlock()
	if !ok {
		notFound(w, "Comment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Comment deleted successfully"})
}

func (s *Server) handleListBetting(w http.ResponseWriter, r *http.Request) {
	raceID := queryID(r, "race_id")
	s.mu.Lock()
	out := []domain.BettingOutcome{}
	for _, b := range s.bets {
		if raceID == 0 || b.RaceID == raceID {
			out = append(out, b)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateBetting(w http.ResponseWriter, r *http.Request) {
	var in domain.BettingOutcome
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || strings.TrimSpace(in.Numbers) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid betting result"})
		return
	}
	s.mu.Lock()
	s.nextBet++
	in.ID = s.nextBet
	s.bets = append(s.bets, in)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	s.mu.Lock()
	out := []domain.ConditionStats{}
	for _, row := range s.stats {
		if category == "" || row.Category == category {
			out = append(out, row)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleKPI(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	k := s.kpi
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, k)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := append([]domain.Recommendation{}, s.recs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}
