package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kalambet/racenotes/internal/domain"
)

// ListRaces returns the races held on date, optionally restricted to venue.
func (c *Client) ListRaces(ctx context.Context, date, venue string) ([]domain.Race, error) {
	q := url.Values{}
	q.Set("race_date", date)
	if venue != "" {
		q.Set("venue", venue)
	}
	var races []domain.Race
	if err := c.do(ctx, "list races", http.MethodGet, "/races", q, nil, &races); err != nil {
		return nil, err
	}
	if races == nil {
		races = []domain.Race{}
	}
	return races, nil
}

// GetRaceDetail returns one race with its entrants in entry order.
func (c *Client) GetRaceDetail(ctx context.Context, id int64) (domain.RaceDetail, error) {
	var d domain.RaceDetail
	if err := c.do(ctx, "race detail", http.MethodGet, "/races/"+strconv.FormatInt(id, 10), nil, nil, &d); err != nil {
		return domain.RaceDetail{}, err
	}
	d.SortHorses()
	return d, nil
}

// Sync asks the Gateway to ingest race data for date from its upstream.
func (c *Client) Sync(ctx context.Context, date string, force bool) (domain.SyncResult, error) {
	q := url.Values{}
	q.Set("target_date", date)
	q.Set("force", strconv.FormatBool(force))
	var res domain.SyncResult
	if err := c.do(ctx, "sync race data", http.MethodPost, "/sync", q, nil, &res); err != nil {
		return domain.SyncResult{}, err
	}
	return res, nil
}
