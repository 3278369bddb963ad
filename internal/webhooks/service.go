// Package webhooks forwards NewWave notifications to configured HTTP endpoints.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/WavePortal/internal/events"
	"go.uber.org/zap"
)

// Header names set on every delivery.
const (
	HeaderSignature = "X-WavePortal-Signature"
	HeaderEvent     = "X-WavePortal-Event"
	HeaderDelivery  = "X-WavePortal-Delivery"
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Dispatcher posts each NewWave to every endpoint, signing the body with HMAC-SHA256.
// Delivery failures are logged and never reach the wave path.
type Dispatcher struct {
	urls       []string
	secret     string
	httpClient *http.Client
	delays     []time.Duration // wait before attempts 2..n
	onMetrics  MetricsRecorder
	onDelivery func(Delivery)
	logger     *zap.Logger
}

// NewDispatcher creates a Dispatcher for urls. An empty secret disables signing.
func NewDispatcher(urls []string, secret string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		urls:       urls,
		secret:     secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{1 * time.Second, 5 * time.Second},
		logger:     logger,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) {
	d.onMetrics = fn
}

// SetRetryDelays replaces the backoff schedule. len(delays)+1 attempts are made.
func (d *Dispatcher) SetRetryDelays(delays []time.Duration) {
	d.delays = delays
}

// Run delivers events from sub until ctx is cancelled or the subscription closes.
// Events are handled one at a time so endpoints see them in append order.
func (d *Dispatcher) Run(ctx context.Context, sub *events.Subscription) {
	defer sub.Close()
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			d.Dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// Dispatch fans one event out to all endpoints in parallel and waits for them.
func (d *Dispatcher) Dispatch(ctx context.Context, wave events.NewWave) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      EventNewWave,
		Timestamp: time.Now().UTC(),
		Wave:      wave,
	}
	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}
	signature := ""
	if d.secret != "" {
		signature = SignPayload(body, d.secret)
	}

	var wg sync.WaitGroup
	for _, url := range d.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			d.deliver(ctx, url, event.ID, body, signature)
		}(url)
	}
	wg.Wait()
}

// deliver sends the event to a single endpoint with retries.
func (d *Dispatcher) deliver(ctx context.Context, url, eventID string, body []byte, signature string) {
	attempts := len(d.delays) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(d.delays[attempt-2]):
			case <-ctx.Done():
				return
			}
		}

		success, statusCode, errMsg := d.doDelivery(ctx, url, eventID, body, signature)
		if d.onMetrics != nil {
			d.onMetrics(success)
		}
		if d.onDelivery != nil {
			d.onDelivery(Delivery{
				EventID:    eventID,
				URL:        url,
				StatusCode: statusCode,
				Attempt:    attempt,
				Success:    success,
				Error:      errMsg,
			})
		}
		if success {
			return
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// doDelivery performs a single HTTP POST delivery.
func (d *Dispatcher) doDelivery(ctx context.Context, url, eventID string, body []byte, signature string) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, EventNewWave)
	req.Header.Set(HeaderDelivery, eventID)
	if signature != "" {
		req.Header.Set(HeaderSignature, signature)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// SignPayload computes the HMAC-SHA256 signature header value for body.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is a valid signature of body.
func VerifySignature(body []byte, secret, header string) bool {
	return hmac.Equal([]byte(SignPayload(body, secret)), []byte(header))
}
