package webclient

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/nutools/internal/metrics"
)

const (
	// DefaultTimeout bounds both a single request and the total retry wait.
	DefaultTimeout = 240 * time.Second

	initialBackoff = 2 * time.Second
	maxJitter      = time.Second
)

// Header names used for signed requests.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSalt      = "X-Salt"
	HeaderSignature = "X-Signature"
)

// Sleeper waits between retries.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusError reports a non-200 response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Attempts   int
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: status %d after %d attempt(s)", e.Method, e.URL, e.StatusCode, e.Attempts)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// IsStatus reports whether err is a *StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// Client performs conditions web service requests.
type Client struct {
	http    *http.Client
	ownHTTP bool
	timeout time.Duration
	sleeper Sleeper
	jitter  func() time.Duration
	newID   func() string
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout and the retry budget.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSleeper replaces the wait between retries.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleeper = s }
}

// WithJitter replaces the jitter source. f must return a value in [0, 1s).
func WithJitter(f func() time.Duration) Option {
	return func(c *Client) { c.jitter = f }
}

// WithIDGenerator replaces the request id / salt generator.
func WithIDGenerator(f func() string) Option {
	return func(c *Client) { c.newID = f }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records requests and retries on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		timeout: DefaultTimeout,
		sleeper: timerSleeper{},
		jitter:  func() time.Duration { return rand.N(maxJitter) },
		newID:   func() string { return uuid.NewString() },
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
		c.ownHTTP = true
	}
	return c
}

// Timeout returns the configured timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// SetTimeout changes the retry budget, and the per-request timeout unless
// the *http.Client was supplied through WithHTTPClient. Non-positive values
// are ignored.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.timeout = d
	if c.ownHTTP {
		c.http.Timeout = d
	}
}

// Get fetches url and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, "")
}

// Post sends body to url. When password is non-empty the request is signed.
func (c *Client) Post(ctx context.Context, url string, body []byte, password string) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, body, password)
}

// Sign returns the hex HMAC-SHA256 of salt followed by body.
func Sign(password, salt string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(password))
	mac.Write([]byte(salt))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, password string) ([]byte, error) {
	var waited time.Duration
	backoff := initialBackoff

	for attempt := 1; ; attempt++ {
		status, respBody, err := c.once(ctx, method, url, body, password)
		if err != nil {
			c.metrics.WebRequest(method, 0)
			return nil, err
		}
		c.metrics.WebRequest(method, status)

		switch {
		case status == http.StatusOK:
			return respBody, nil
		case status != http.StatusGatewayTimeout:
			return nil, &StatusError{Method: method, URL: url, StatusCode: status, Body: trimBody(respBody), Attempts: attempt}
		}

		wait := backoff + c.jitter()
		if waited+wait > c.timeout {
			c.logger.Warn("gateway timeout, retry budget exhausted",
				"method", method, "url", url, "attempts", attempt, "waited", waited)
			return nil, &StatusError{Method: method, URL: url, StatusCode: status, Body: trimBody(respBody), Attempts: attempt}
		}
		c.logger.Info("gateway timeout, retrying", "method", method, "url", url, "attempt", attempt, "wait", wait)
		c.metrics.WebRetry()
		if err := c.sleeper.Sleep(ctx, wait); err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, url, err)
		}
		waited += wait
		backoff *= 2
	}
}

func (c *Client) once(ctx context.Context, method, url string, body []byte, password string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	id := c.newID()
	req.Header.Set(HeaderRequestID, id)
	if body != nil {
		req.Header.Set("Content-Type", "text/csv")
	}
	if password != "" {
		req.Header.Set(HeaderSalt, id)
		req.Header.Set(HeaderSignature, Sign(password, id, body))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: read body: %w", method, url, err)
	}
	return resp.StatusCode, b, nil
}

func trimBody(b []byte) string {
	const limit = 256
	b = bytes.TrimSpace(b)
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
