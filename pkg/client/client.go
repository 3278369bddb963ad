package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrRateLimited matches an *APIError for a wave sent inside the cooldown.
	ErrRateLimited = errors.New("rate limited")
	// ErrForbidden matches an *APIError for an owner-only call by a non-owner.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches an *APIError for a missing wave index.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized matches an *APIError for a missing or rejected token.
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError is a non-2xx response from the portal.
type APIError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration // set on 429
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal error %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Wave is a single ledger record.
type Wave struct {
	Index         int    `json:"index"`
	Waver         string `json:"waver"`
	Message       string `json:"message"`
	Timestamp     int64  `json:"timestamp"`
	OwnerApproved bool   `json:"owner_approved"`
}

// Time returns the wave timestamp as a time.Time.
func (w Wave) Time() time.Time { return time.Unix(w.Timestamp, 0).UTC() }

// NewWaveEvent is delivered by Watch for each accepted wave.
type NewWaveEvent struct {
	Index     int    `json:"index"`
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

// Info describes the portal.
type Info struct {
	Owner           string `json:"owner"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
	TotalWaves      int    `json:"total_waves"`
}

// VisibleResult is the moderated view returned by VisibleWaves.
type VisibleResult struct {
	Waves   []Wave `json:"waves"`
	Count   int    `json:"count"`
	IsOwner bool   `json:"is_owner"`
}

// Client is the WavePortal SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	key        *Key

	// token state, guarded by mu
	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time // zero = token was set manually (no auto-refresh)
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithBearerToken attaches a pre-obtained session token to every request.
// The token is treated as long-lived and will not be auto-refreshed.
func WithBearerToken(token string) Option {
	return func(c *Client) error {
		c.bearerToken = token
		c.tokenExpiry = time.Time{}
		return nil
	}
}

// WithKey lets the client log in on demand by signing challenges with k.
func WithKey(k *Key) Option {
	return func(c *Client) error {
		if k == nil {
			return errors.New("nil key")
		}
		c.key = k
		return nil
	}
}

// New creates a Client for the portal at base (e.g. "http://localhost:8080").
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Login runs the challenge/response exchange and caches the resulting token.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) (string, error) {
	if c.key == nil {
		return "", errors.New("no signing key configured")
	}

	var ch struct {
		Nonce string `json:"nonce"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/challenge", "",
		map[string]string{"public_key": c.key.Public()}, &ch); err != nil {
		return "", fmt.Errorf("request challenge: %w", err)
	}

	var sess struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/verify", "",
		map[string]string{"public_key": c.key.Public(), "signature": c.key.Sign(ch.Nonce)}, &sess); err != nil {
		return "", fmt.Errorf("verify challenge: %w", err)
	}

	// Refresh 60 s before actual expiry to avoid clock-skew failures.
	const refreshBuffer = 60 * time.Second
	c.bearerToken = sess.Token
	c.tokenExpiry = sess.ExpiresAt.Add(-refreshBuffer)
	return sess.Token, nil
}

// ensureToken returns a valid bearer token, logging in again if the cached
// token is absent or approaching expiry. Thread-safe.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.bearerToken != "" && (c.tokenExpiry.IsZero() || time.Now().Before(c.tokenExpiry)) {
		return c.bearerToken, nil
	}
	return c.loginLocked(ctx)
}

// optionalToken returns a token when one is available without error.
func (c *Client) optionalToken(ctx context.Context) string {
	c.mu.Lock()
	hasCreds := c.bearerToken != "" || c.key != nil
	c.mu.Unlock()
	if !hasCreds {
		return ""
	}
	tok, err := c.ensureToken(ctx)
	if err != nil {
		return ""
	}
	return tok
}

// Info returns the portal owner, cooldown and total.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/portal", "", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Wave appends a wave signed by the client's identity.
func (c *Client) Wave(ctx context.Context, message string) (*Wave, error) {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("obtain token: %w", err)
	}
	var resp struct {
		Wave Wave `json:"wave"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/waves", token,
		map[string]string{"message": message}, &resp); err != nil {
		return nil, err
	}
	return &resp.Wave, nil
}

// Waves returns the full ledger in append order.
func (c *Client) Waves(ctx context.Context) ([]Wave, error) {
	var resp struct {
		Waves []Wave `json:"waves"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/waves", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Waves, nil
}

// VisibleWaves returns the moderated view for the client's identity, newest
// first. Without credentials only approved waves are returned.
func (c *Client) VisibleWaves(ctx context.Context) (*VisibleResult, error) {
	var resp VisibleResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/waves/visible", c.optionalToken(ctx), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Count returns the number of waves.
func (c *Client) Count(ctx context.Context) (int, error) {
	var resp struct {
		Total int `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/waves/count", "", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Total, nil
}

// SetApproval sets the approval flag of the wave at index. Owner only.
func (c *Client) SetApproval(ctx context.Context, index int, approved bool) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}
	path := "/api/v1/waves/" + strconv.Itoa(index) + "/approval"
	return c.doJSON(ctx, http.MethodPatch, path, token, map[string]bool{"approved": approved}, nil)
}

// Approve marks the wave at index as approved. Owner only.
func (c *Client) Approve(ctx context.Context, index int) error {
	return c.SetApproval(ctx, index, true)
}

// Reject clears the approval of the wave at index. Owner only.
func (c *Client) Reject(ctx context.Context, index int) error {
	return c.SetApproval(ctx, index, false)
}

// Watch subscribes to the NewWave stream. The events channel closes when ctx is
// cancelled or the stream ends; the final error, if any, is sent on errc.
func (c *Client) Watch(ctx context.Context) (<-chan NewWaveEvent, <-chan error) {
	out := make(chan NewWaveEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/waves/stream", nil)
		if err != nil {
			errc <- err
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		// Streams outlive the default request timeout.
		hc := *c.httpClient
		hc.Timeout = 0
		resp, err := hc.Do(req)
		if err != nil {
			errc <- fmt.Errorf("HTTP request failed: %w", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			errc <- apiError(resp, body)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		var event string
		var data strings.Builder
		for sc.Scan() {
			line := sc.Text()
			switch {
			case line == "":
				if event == "new_wave" && data.Len() > 0 {
					var ev NewWaveEvent
					if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
						errc <- fmt.Errorf("decode event: %w", err)
						return
					}
					select {
					case out <- ev:
					case <-ctx.Done():
						errc <- ctx.Err()
						return
					}
				}
				event = ""
				data.Reset()
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			errc <- err
			return
		}
		errc <- ctx.Err()
	}()

	return out, errc
}

// doJSON sends reqBody (if non-nil) as JSON and decodes a 2xx response into respBody.
func (c *Client) doJSON(ctx context.Context, method, path, token string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return apiError(resp, raw)
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(raw, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response, body []byte) *APIError {
	e := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		e.Message = payload.Error
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
		e.RetryAfter = time.Duration(secs) * time.Second
	}
	return e
}
