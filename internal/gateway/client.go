// Package gateway is the typed HTTP client for the race-data service: race
// cards, comments, betting outcomes, statistics and the ingestion trigger.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every request, connection and body read included.
const DefaultTimeout = 10 * time.Second

const maxBodyBytes = 1 << 20

// ErrResponseTooLarge is wrapped by the RemoteError returned when a success
// body exceeds the read limit.
var ErrResponseTooLarge = fmt.Errorf("response too large: more than %d bytes", maxBodyBytes)

// RemoteError is returned for any non-2xx response and for transport
// failures, timeouts included. StatusCode is 0 when no response arrived.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: gateway not reachable (%v)", e.Op, e.Err)
	}
	return e.Op + ": gateway error"
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Options configures a Client. Zero values pick the defaults.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Token      string
	RateLimit  float64 // requests per second; <= 0 disables limiting
	Burst      int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Gateway. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates a Client for opts.BaseURL.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	if hc.Timeout == 0 {
		cp := *hc
		cp.Timeout = timeout
		hc = &cp
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		token:      opts.Token,
		httpClient: hc,
		limiter:    limiter,
		logger:     logger,
	}
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &RemoteError{Op: op, Err: err}
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: marshalling request: %w", op, err)
		}
		bodyReader = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("gateway request failed",
			zap.String("method", method), zap.String("path", path),
			zap.String("request_id", reqID), zap.Error(err))
		return &RemoteError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("gateway request",
		zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.String("request_id", reqID),
		zap.Duration("duration", time.Since(start)))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Message: serverMessage(data)}
	}
	if len(data) > maxBodyBytes {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: ErrResponseTooLarge}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// serverMessage extracts the human-readable reason from an error body.
// FastAPI puts it in "detail" (a string, or a list of validation errors);
// other services use "message" or {"error":{"message":...}}.
func serverMessage(body []byte) string {
	var envelope struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if len(envelope.Detail) > 0 {
			var s string
			if json.Unmarshal(envelope.Detail, &s) == nil && s != "" {
				return s
			}
			var items []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(envelope.Detail, &items) == nil && len(items) > 0 && items[0].Msg != "" {
				return items[0].Msg
			}
		}
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != nil && envelope.Error.Message != "" {
			return envelope.Error.Message
		}
	}
	return strings.TrimSpace(string(body))
}

// IsNotFound reports whether err is a 404 from the Gateway.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}

// Health checks that the Gateway answers on its root endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]any
	return c.do(ctx, "health", http.MethodGet, "/", nil, nil, &out)
}
