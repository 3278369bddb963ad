// Package health runs periodic probes against the portal's dependencies
// (wave ledger store, Redis, webhook receivers) and tracks which are degraded.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// ProbeFunc returns nil when the dependency is usable.
type ProbeFunc func(ctx context.Context) error

// Check is one named dependency probe. Only critical checks affect Healthy.
type Check struct {
	Name     string
	Critical bool
	Probe    ProbeFunc
}

// CheckStatus is the last known state of one check.
type CheckStatus struct {
	Status      string    `json:"status"`
	Critical    bool      `json:"critical"`
	FailCount   int       `json:"fail_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Report is the snapshot served by the readiness endpoint.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckStatus `json:"checks"`
}

// StatusChangeFunc is called when a check crosses the fail threshold in either direction.
type StatusChangeFunc func(name string, healthy bool)

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(name string, success bool)

// Checker runs periodic dependency probes.
type Checker struct {
	checks    []Check
	states    map[string]*CheckStatus
	mu        sync.RWMutex
	cfg       Config
	onChange  StatusChangeFunc
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a Checker. Every check starts healthy.
func New(checks []Check, cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	states := make(map[string]*CheckStatus, len(checks))
	for _, c := range checks {
		states[c.Name] = &CheckStatus{Status: StatusHealthy, Critical: c.Critical}
	}
	return &Checker{
		checks: checks,
		states: states,
		cfg:    cfg,
		logger: logger,
	}
}

// SetStatusChange configures the threshold transition callback.
func (h *Checker) SetStatusChange(fn StatusChangeFunc) {
	h.onChange = fn
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start probes immediately and then on every interval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll runs every probe concurrently and waits for them to finish.
func (h *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range h.checks {
		wg.Add(1)
		go func(check Check) {
			defer wg.Done()
			h.runCheck(ctx, check)
		}(c)
	}
	wg.Wait()
}

func (h *Checker) runCheck(ctx context.Context, check Check) {
	probeCtx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := check.Probe(probeCtx)
	cancel()
	success := err == nil

	if h.onMetrics != nil {
		h.onMetrics(check.Name, success)
	}

	h.mu.Lock()
	st := h.states[check.Name]
	prevCount := st.FailCount
	st.LastChecked = time.Now().UTC()
	if success {
		st.FailCount = 0
		st.LastError = ""
		st.Status = StatusHealthy
	} else {
		st.FailCount++
		st.LastError = err.Error()
		if st.FailCount >= h.cfg.FailThreshold {
			st.Status = StatusDegraded
		}
	}
	count := st.FailCount
	h.mu.Unlock()

	switch {
	case success && prevCount >= h.cfg.FailThreshold:
		h.logger.Info("health: recovered", zap.String("check", check.Name))
		if h.onChange != nil {
			h.onChange(check.Name, true)
		}
	case !success && count == h.cfg.FailThreshold:
		// Fires once, exactly at the threshold.
		h.logger.Warn("health: degraded",
			zap.String("check", check.Name),
			zap.Int("fail_count", count),
			zap.Error(err),
		)
		if h.onChange != nil {
			h.onChange(check.Name, false)
		}
	case !success:
		h.logger.Debug("health: probe failed", zap.String("check", check.Name), zap.Error(err))
	}
}

// Healthy reports whether every critical check is below the fail threshold.
func (h *Checker) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, st := range h.states {
		if st.Critical && st.Status == StatusDegraded {
			return false
		}
	}
	return true
}

// Report returns a copy of the current state of every check.
func (h *Checker) Report() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{Status: StatusHealthy, Checks: make(map[string]CheckStatus, len(h.states))}
	for name, st := range h.states {
		r.Checks[name] = *st
		if st.Critical && st.Status == StatusDegraded {
			r.Status = StatusDegraded
		}
	}
	return r
}

// HTTPProbe returns a probe that tries HEAD then GET against endpoint.
// Any response below 500 counts as reachable, since webhook receivers often
// reject non-POST methods.
func HTTPProbe(client *http.Client, endpoint string) ProbeFunc {
	return func(ctx context.Context) error {
		status, err := probeEndpoint(ctx, client, http.MethodHead, endpoint)
		if err == nil && status < 500 {
			return nil
		}
		status, err = probeEndpoint(ctx, client, http.MethodGet, endpoint)
		if err != nil {
			return err
		}
		if status >= 500 {
			return fmt.Errorf("%s returned %d", endpoint, status)
		}
		return nil
	}
}

func probeEndpoint(ctx context.Context, client *http.Client, method, endpoint string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
