package domain

import "sort"

// Race is one race card entry as served by the Gateway.
type Race struct {
	ID             int64   `json:"id"`
	RaceID         string  `json:"race_id"`
	Date           string  `json:"race_date"`
	Venue          string  `json:"venue"`
	Number         int     `json:"race_number"`
	Name           string  `json:"race_name"`
	Class          string  `json:"race_class"`
	CourseType     string  `json:"course_type"`
	Distance       int     `json:"distance"`
	Weather        *string `json:"weather"`
	TrackCondition *string `json:"track_condition"`
	StartTime      *string `json:"start_time"`
}

// Horse is an entrant of exactly one race.
type Horse struct {
	ID          int64    `json:"id"`
	RaceID      int64    `json:"race_id"`
	HorseID     string   `json:"horse_id"`
	Name        string   `json:"horse_name"`
	Number      int      `json:"horse_number"`
	Jockey      string   `json:"jockey"`
	Trainer     string   `json:"trainer"`
	Weight      *float64 `json:"weight"`
	Odds        *float64 `json:"odds"`
	ResultOrder *int     `json:"result_order"`
}

// Finished reports whether a finishing position has been published.
func (h Horse) Finished() bool { return h.ResultOrder != nil }

// RaceDetail pairs a race with its entrants. A RaceDetail is treated as
// immutable once built; stores replace it wholesale.
type RaceDetail struct {
	Race   Race    `json:"race"`
	Horses []Horse `json:"horses"`
}

// SortHorses orders entrants by entry number.
func (d *RaceDetail) SortHorses() {
	sort.SliceStable(d.Horses, func(i, j int) bool {
		return d.Horses[i].Number < d.Horses[j].Number
	})
}

// Horse returns the entrant with the given identifier.
func (d *RaceDetail) Horse(id int64) (Horse, bool) {
	for _, h := range d.Horses {
		if h.ID == id {
			return h, true
		}
	}
	return Horse{}, false
}
