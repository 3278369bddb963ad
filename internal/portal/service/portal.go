package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/jmerrifield20/WavePortal/internal/portal/service"

// MetricsRecorder receives ledger outcomes. handler.PrometheusRecorder satisfies it.
type MetricsRecorder interface {
	RecordWave(outcome string)
	RecordApproval(approved bool, outcome string)
	SetTotalWaves(n int)
}

// Outcome labels passed to MetricsRecorder.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRateLimited  = "rate_limited"
	OutcomeTooLong      = "too_long"
	OutcomeUnauthorized = "unauthorized"
	OutcomeOutOfRange   = "out_of_range"
	OutcomeError        = "error"
)

// Info summarises the portal for clients.
type Info struct {
	Owner           waveledger.Address `json:"owner"`
	CooldownSeconds int64              `json:"cooldown_seconds"`
	TotalWaves      int                `json:"total_waves"`
}

// PortalService is the only writer to the wave ledger inside a process.
// It orders mutations, publishes NewWave events in append order and applies the
// viewer display policy.
type PortalService struct {
	ledger  waveledger.Ledger
	broker  *events.Broker
	metrics MetricsRecorder // nil = no metrics
	tracer  trace.Tracer
	logger  *zap.Logger

	mu sync.Mutex // held across append + publish
}

// NewPortalService creates a PortalService. broker may be nil to disable notifications.
func NewPortalService(ledger waveledger.Ledger, broker *events.Broker, logger *zap.Logger) *PortalService {
	return &PortalService{
		ledger: ledger,
		broker: broker,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

// SetMetricsRecorder configures the metrics sink.
func (s *PortalService) SetMetricsRecorder(m MetricsRecorder) {
	s.metrics = m
}

// Owner returns the ledger owner.
func (s *PortalService) Owner() waveledger.Address { return s.ledger.Policy().Owner }

// Cooldown returns the per-sender cooldown.
func (s *PortalService) Cooldown() time.Duration { return s.ledger.Policy().Cooldown }

// Wave appends a wave from sender and notifies subscribers.
// sender must come from an authenticated identity, never from the request body.
func (s *PortalService) Wave(ctx context.Context, sender waveledger.Address, message string) (waveledger.Record, error) {
	ctx, span := s.tracer.Start(ctx, "PortalService.Wave",
		trace.WithAttributes(attribute.String("wave.sender", sender.String())))
	defer span.End()

	s.mu.Lock()
	rec, err := s.ledger.Append(ctx, sender, message)
	if err == nil && s.broker != nil {
		s.broker.Publish(events.FromRecord(rec))
	}
	s.mu.Unlock()

	if err != nil {
		outcome := waveOutcome(err)
		s.recordWave(outcome)
		if outcome == OutcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("wave append failed",
				zap.String("sender", sender.String()),
				zap.Error(err),
			)
		} else {
			s.logger.Info("wave rejected",
				zap.String("sender", sender.String()),
				zap.String("reason", outcome),
			)
		}
		return waveledger.Record{}, fmt.Errorf("wave: %w", err)
	}

	span.SetAttributes(attribute.Int("wave.index", rec.Index))
	s.recordWave(OutcomeAccepted)
	if s.metrics != nil {
		s.metrics.SetTotalWaves(rec.Index + 1)
	}
	s.logger.Info("wave accepted",
		zap.Int("index", rec.Index),
		zap.String("sender", sender.String()),
		zap.Int64("timestamp", rec.Timestamp),
	)
	return rec, nil
}

// Waves returns every wave in append order.
func (s *PortalService) Waves(ctx context.Context) ([]waveledger.Record, error) {
	ctx, span := s.tracer.Start(ctx, "PortalService.Waves")
	defer span.End()
	records, err := s.ledger.All(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list waves: %w", err)
	}
	return records, nil
}

// TotalWaves returns the number of waves.
func (s *PortalService) TotalWaves(ctx context.Context) (int, error) {
	n, err := s.ledger.Len(ctx)
	if err != nil {
		return 0, fmt.Errorf("count waves: %w", err)
	}
	return n, nil
}

// VisibleWaves applies the moderation display policy for viewer: approved waves
// for everyone, every wave for the owner. Newest waves come first.
// A zero viewer is an anonymous visitor.
func (s *PortalService) VisibleWaves(ctx context.Context, viewer waveledger.Address) ([]waveledger.Record, error) {
	all, err := s.Waves(ctx)
	if err != nil {
		return nil, err
	}
	owner := s.Owner()
	visible := make([]waveledger.Record, 0, len(all))
	for _, r := range all {
		if r.VisibleTo(viewer, owner) {
			visible = append(visible, r)
		}
	}
	sort.SliceStable(visible, func(i, j int) bool { return visible[i].Index > visible[j].Index })
	return visible, nil
}

// SetApproval sets the approval flag of the wave at index on behalf of caller.
func (s *PortalService) SetApproval(ctx context.Context, caller waveledger.Address, index int, approved bool) error {
	ctx, span := s.tracer.Start(ctx, "PortalService.SetApproval",
		trace.WithAttributes(
			attribute.String("wave.caller", caller.String()),
			attribute.Int("wave.index", index),
			attribute.Bool("wave.approved", approved),
		))
	defer span.End()

	s.mu.Lock()
	err := s.ledger.SetApproval(ctx, caller, index, approved)
	s.mu.Unlock()

	if err != nil {
		outcome := approvalOutcome(err)
		s.recordApproval(approved, outcome)
		if outcome == OutcomeError {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("approval update failed", zap.Int("index", index), zap.Error(err))
		} else {
			s.logger.Warn("approval rejected",
				zap.String("caller", caller.String()),
				zap.Int("index", index),
				zap.String("reason", outcome),
			)
		}
		return fmt.Errorf("set approval: %w", err)
	}

	s.recordApproval(approved, OutcomeAccepted)
	s.logger.Info("wave approval updated",
		zap.Int("index", index),
		zap.Bool("approved", approved),
	)
	return nil
}

// Info returns the owner, cooldown and wave count.
func (s *PortalService) Info(ctx context.Context) (*Info, error) {
	n, err := s.TotalWaves(ctx)
	if err != nil {
		return nil, err
	}
	return &Info{
		Owner:           s.Owner(),
		CooldownSeconds: int64(s.Cooldown() / time.Second),
		TotalWaves:      n,
	}, nil
}

// Subscribe registers a NewWave listener. It returns nil when notifications are disabled.
func (s *PortalService) Subscribe(buffer int) *events.Subscription {
	if s.broker == nil {
		return nil
	}
	return s.broker.Subscribe(buffer)
}

func (s *PortalService) recordWave(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordWave(outcome)
	}
}

func (s *PortalService) recordApproval(approved bool, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordApproval(approved, outcome)
	}
}

func waveOutcome(err error) string {
	switch {
	case errors.Is(err, waveledger.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, waveledger.ErrMessageTooLong):
		return OutcomeTooLong
	default:
		return OutcomeError
	}
}

func approvalOutcome(err error) string {
	switch {
	case errors.Is(err, waveledger.ErrUnauthorized):
		return OutcomeUnauthorized
	case errors.Is(err, waveledger.ErrIndexOutOfRange):
		return OutcomeOutOfRange
	default:
		return OutcomeError
	}
}
