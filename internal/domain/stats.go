package domain

import "github.com/shopspring/decimal"

// ConditionStats is one row of the Gateway's per-condition statistics.
type ConditionStats struct {
	ID           int64   `json:"id"`
	Category     string  `json:"category"`
	Condition    string  `json:"condition"`
	BetCount     int     `json:"bet_count"`
	WinCount     int     `json:"win_count"`
	TotalBet     int     `json:"total_bet"`
	TotalPayout  int     `json:"total_payout"`
	ROI          float64 `json:"roi"`
	CalculatedAt string  `json:"calculated_at"`
}

// StatsFilter narrows a statistics query. Empty fields are not sent.
type StatsFilter struct {
	Category string
	From     string
	To       string
}

// KPI is the headline return summary over a date range.
type KPI struct {
	ROI         float64 `json:"roi"`
	WinRate     float64 `json:"win_rate"`
	BetCount    int     `json:"bet_count"`
	TotalBet    int     `json:"total_bet"`
	TotalPayout int     `json:"total_payout"`
}

// Recommendation pairs a race with the historical condition that flagged it.
type Recommendation struct {
	Race      Race `json:"race"`
	Condition struct {
		Category  string  `json:"category"`
		Condition string  `json:"condition"`
		ROI       float64 `json:"roi"`
		BetCount  int     `json:"bet_count"`
	} `json:"condition"`
}

// Summary aggregates a set of betting outcomes locally.
type Summary struct {
	Bets     int
	Wins     int
	Staked   int
	Returned int
	ROI      decimal.Decimal
	HitRate  decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Summarize computes return-on-investment and hit rate as percentages
// rounded to two places. Empty input yields zero rates.
func Summarize(outcomes []BettingOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		s.Bets++
		s.Staked += o.Amount
		if o.IsWon {
			s.Wins++
			s.Returned += o.Payout
		}
	}
	s.ROI = decimal.Zero
	s.HitRate = decimal.Zero
	if s.Staked > 0 {
		s.ROI = decimal.NewFromInt(int64(s.Returned)).
			Div(decimal.NewFromInt(int64(s.Staked))).
			Mul(hundred).Round(2)
	}
	if s.Bets > 0 {
		s.HitRate = decimal.NewFromInt(int64(s.Wins)).
			Div(decimal.NewFromInt(int64(s.Bets))).
			Mul(hundred).Round(2)
	}
	return s
}
