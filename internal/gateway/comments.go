package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/kalambet/racenotes/internal/domain"
)

func commentPath(id int64) string {
	return "/comments/" + strconv.FormatInt(id, 10)
}

// ListComments returns the annotations matching filter.
func (c *Client) ListComments(ctx context.Context, filter domain.AnnotationFilter) ([]domain.Annotation, error) {
	q := url.Values{}
	if filter.RaceID > 0 {
		q.Set("race_id", strconv.FormatInt(filter.RaceID, 10))
	}
	if filter.HorseID > 0 {
		q.Set("horse_id", strconv.FormatInt(filter.HorseID, 10))
	}
	var out []domain.Annotation
	if err := c.do(ctx, "list annotations", http.MethodGet, "/comments", q, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.Annotation{}
	}
	return out, nil
}

// CreateComment persists a new annotation and returns the canonical record.
func (c *Client) CreateComment(ctx context.Context, in domain.NewAnnotation) (domain.Annotation, error) {
	var out domain.Annotation
	if err := c.do(ctx, "create annotation", http.MethodPost, "/comments", nil, in, &out); err != nil {
		return domain.Annotation{}, err
	}
	return out, nil
}

// UpdateComment applies patch and returns the server's record.
func (c *Client) UpdateComment(ctx context.Context, id int64, patch domain.AnnotationPatch) (domain.Annotation, error) {
	var out domain.Annotation
	if err := c.do(ctx, "update annotation", http.MethodPut, commentPath(id), nil, patch, &out); err != nil {
		return domain.Annotation{}, err
	}
	return out, nil
}

// DeleteComment removes an annotation.
func (c *Client) DeleteComment(ctx context.Context, id int64) error {
	return c.do(ctx, "delete annotation", http.MethodDelete, commentPath(id), nil, nil, nil)
}
