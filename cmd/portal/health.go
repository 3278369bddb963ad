package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/health"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/redis/go-redis/v9"
)

// dependencyChecks builds the readiness probes. The ledger and Redis are
// critical; webhook receivers are reported but never fail readiness.
func dependencyChecks(ledger waveledger.Ledger, rdb *redis.Client, webhookURLs []string) []health.Check {
	checks := []health.Check{{
		Name:     "ledger",
		Critical: true,
		Probe: func(ctx context.Context) error {
			_, err := ledger.Len(ctx)
			return err
		},
	}}
	if rdb != nil {
		checks = append(checks, health.Check{
			Name:     "redis",
			Critical: true,
			Probe: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		})
	}
	hc := &http.Client{Timeout: 5 * time.Second}
	for _, u := range webhookURLs {
		checks = append(checks, health.Check{
			Name:  "webhook:" + u,
			Probe: health.HTTPProbe(hc, u),
		})
	}
	return checks
}
