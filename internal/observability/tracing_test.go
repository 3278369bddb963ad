package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmerrifield20/WavePortal/internal/events"
	"github.com/jmerrifield20/WavePortal/internal/observability"
	"github.com/jmerrifield20/WavePortal/internal/portal/service"
	"github.com/jmerrifield20/WavePortal/internal/waveledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestSetup_disabled(t *testing.T) {
	shutdown, err := observability.Setup(context.Background(), observability.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The OTLP exporter dials lazily, so no collector is needed.
	shutdown, err := observability.Setup(ctx, observability.Config{
		Enabled:        true,
		ServiceName:    "waveportal",
		ServiceVersion: "test",
		OTLPEndpoint:   "127.0.0.1:4317",
		Insecure:       true,
		SampleRate:     1,
	}, zap.NewNop())
	require.NoError(t, err)
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok, "global provider should be the SDK provider")
	assert.NoError(t, shutdown(ctx))
}

func TestTracerProvider_recordsPortalSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := observability.NewTracerProvider(context.Background(), observability.Config{
		ServiceName: "waveportal-test",
		SampleRate:  1,
	}, exporter)
	require.NoError(t, err)

	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	owner := waveledger.MustParseAddress("0x823dd0bd4df84489ad8e11c22da4af3dab431108")
	ledger, err := waveledger.NewMemoryLedger(waveledger.NewPolicy(owner), waveledger.SystemClock)
	require.NoError(t, err)
	svc := service.NewPortalService(ledger, events.NewBroker(), zap.NewNop())

	_, err = svc.Wave(context.Background(), owner, "traced")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tp.ForceFlush(ctx))

	var names []string
	spans := exporter.GetSpans()
	for _, s := range spans {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "PortalService.Wave")
	require.NotEmpty(t, spans)
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("service.name", "waveportal-test"))
}
