package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/zhouzirui/tara-call/backend/internal/config"
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

func TestRecorderCounts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	r, err := NewWithProvider(provider)
	require.NoError(t, err)

	ctx := context.Background()
	r.CredentialIssued(ctx, "tara")
	r.CredentialIssued(ctx, "tara")
	r.FeedbackFailed(ctx, "tara")
	r.CallEnded(ctx, "expired", 300)

	data := collect(t, reader)

	issued, ok := data["tara_credentials_issued_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, issued.DataPoints, 1)
	assert.Equal(t, int64(2), issued.DataPoints[0].Value)

	failed, ok := data["tara_feedback_failed_total"].(metricdata.Sum[int64])
	require.True(t, ok)
	assert.Equal(t, int64(1), failed.DataPoints[0].Value)

	duration, ok := data["tara_call_duration_seconds"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)
}

func TestNewDisabledIsNoop(t *testing.T) {
	r, err := New(context.Background(), config.MetricsConfig{Enabled: false})
	require.NoError(t, err)

	r.FeedbackSaved(context.Background(), "tara")
	assert.NoError(t, r.Close(context.Background()))
}
