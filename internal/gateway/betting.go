package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kalambet/racenotes/internal/domain"
)

// CreateBetting records a betting outcome.
func (c *Client) CreateBetting(ctx context.Context, o domain.BettingOutcome) (domain.BettingOutcome, error) {
	var out domain.BettingOutcome
	if err := c.do(ctx, "record betting outcome", http.MethodPost, "/betting", nil, o, &out); err != nil {
		return domain.BettingOutcome{}, err
	}
	return out, nil
}

// ListBetting returns recorded outcomes, for one race when raceID > 0.
func (c *Client) ListBetting(ctx context.Context, raceID int64) ([]domain.BettingOutcome, error) {
	q := url.Values{}
	if raceID > 0 {
		q.Set("race_id", strconv.FormatInt(raceID, 10))
	}
	var out []domain.BettingOutcome
	if err := c.do(ctx, "list betting outcomes", http.MethodGet, "/betting", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.BettingOutcome{}
	}
	return out, nil
}
