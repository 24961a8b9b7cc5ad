package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Gurpartap/promptchain/chain"
	"github.com/Gurpartap/promptchain/telemetry"
)

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is %T", m.Name, m.Data)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestCollector_RecordsInstruments(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	collector, err := telemetry.New(telemetry.Options{Workflow: "research", Meter: provider.Meter("test")})
	require.NoError(t, err)

	ctx := context.Background()
	collector.LogCall(ctx, chain.CallRecord{AgentID: "a", Tier: "premium", InputTokens: 100, OutputTokens: 50, Cost: 0.5, Latency: 20 * time.Millisecond, Success: true})
	collector.LogCall(ctx, chain.CallRecord{AgentID: "b", Tier: "standard", InputTokens: 10, Latency: 5 * time.Millisecond, Error: "boom"})

	metrics := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumInt(t, metrics["promptchain.calls"]))
	assert.Equal(t, int64(160), sumInt(t, metrics["promptchain.tokens"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["promptchain.failures"]))

	cost, ok := metrics["promptchain.cost_usd"].Data.(metricdata.Sum[float64])
	require.True(t, ok)
	var totalCost float64
	for _, dp := range cost.DataPoints {
		totalCost += dp.Value
	}
	assert.InDelta(t, 0.5, totalCost, 1e-9)

	latency, ok := metrics["promptchain.latency_ms"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range latency.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}
