package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"content-eval/internal/config"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	r, err := NewRecorder(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	r.Generation(ctx, "openai", "gpt-4", OutcomeSuccess, 0.025, 120)
	r.Generation(ctx, "openai", "gpt-4", OutcomeFailure, 0, 30)
	r.Generation(ctx, "openai", "gpt-4", OutcomeSkipped, 0, 0)
	r.Evaluation(ctx, true)
	r.Evaluation(ctx, false)
	r.Sweep(ctx, OutcomeSuccess)

	data := collect(t, reader)

	gens := data["content_eval_generations_total"].(metricdata.Sum[int64])
	require.Len(t, gens.DataPoints, 3)
	for _, dp := range gens.DataPoints {
		assert.EqualValues(t, 1, dp.Value)
		_, ok := dp.Attributes.Value(attribute.Key("outcome"))
		assert.True(t, ok)
	}

	cost := data["content_eval_generation_cost_usd"].(metricdata.Sum[float64])
	require.Len(t, cost.DataPoints, 1)
	assert.InDelta(t, 0.025, cost.DataPoints[0].Value, 1e-12)

	latency := data["content_eval_generation_latency_ms"].(metricdata.Histogram[float64])
	require.Len(t, latency.DataPoints, 1)
	assert.EqualValues(t, 2, latency.DataPoints[0].Count)

	evals := data["content_eval_evaluations_total"].(metricdata.Sum[int64])
	assert.EqualValues(t, 2, evals.DataPoints[0].Value)
	pub := data["content_eval_would_publish_total"].(metricdata.Sum[int64])
	assert.EqualValues(t, 1, pub.DataPoints[0].Value)

	sweeps := data["content_eval_sweeps_total"].(metricdata.Sum[int64])
	assert.EqualValues(t, 1, sweeps.DataPoints[0].Value)
}

func TestSetup_Disabled(t *testing.T) {
	meter, shutdown, err := Setup(context.Background(), config.MetricsConfig{})
	require.NoError(t, err)
	require.NotNil(t, meter)
	assert.NoError(t, shutdown(context.Background()))

	_, err = NewRecorder(meter)
	assert.NoError(t, err)
}

func TestNop(t *testing.T) {
	r := Nop()
	require.NotNil(t, r)
	r.Generation(context.Background(), "google", "gemini-1.5-pro", OutcomeSuccess, 1, 1)
	r.Evaluation(context.Background(), true)
}
