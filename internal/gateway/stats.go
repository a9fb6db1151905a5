package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kalambet/racenotes/internal/domain"
)

func dateRange(from, to string) url.Values {
	q := url.Values{}
	if from != "" {
		q.Set("start_date", from)
	}
	if to != "" {
		q.Set("end_date", to)
	}
	return q
}

// Stats returns per-condition statistics, best ROI first.
func (c *Client) Stats(ctx context.Context, f domain.StatsFilter) ([]domain.ConditionStats, error) {
	q := dateRange(f.From, f.To)
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	var out []domain.ConditionStats
	if err := c.do(ctx, "stats", http.MethodGet, "/stats", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KPI returns the overall return summary between from and to.
func (c *Client) KPI(ctx context.Context, from, to string) (domain.KPI, error) {
	var out domain.KPI
	if err := c.do(ctx, "kpi", http.MethodGet, "/kpi", dateRange(from, to), nil, &out); err != nil {
		return domain.KPI{}, err
	}
	return out, nil
}

// Recommendations returns the races on date that match historically
// profitable conditions.
func (c *Client) Recommendations(ctx context.Context, date string) ([]domain.Recommendation, error) {
	q := url.Values{}
	q.Set("target_date", date)
	var out []domain.Recommendation
	if err := c.do(ctx, "recommendations", http.MethodGet, "/recommendations", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
