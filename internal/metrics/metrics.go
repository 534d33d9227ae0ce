// Package metrics owns the OpenTelemetry instruments recorded by the call backend.
package metrics

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/zhouzirui/tara-call/backend/internal/config"
)

const (
	serviceName    = "tara-call"
	serviceVersion = "1.0.0"
)

// Recorder records credential, feedback and call-lifecycle metrics.
// The zero value is not usable; use New, NewWithProvider or Noop.
type Recorder struct {
	shutdown func(context.Context) error

	credentialsIssued metric.Int64Counter
	credentialsFailed metric.Int64Counter
	feedbackSaved     metric.Int64Counter
	feedbackFailed    metric.Int64Counter
	callsEnded        metric.Int64Counter
	callDuration      metric.Float64Histogram
}

// New builds a Recorder exporting over OTLP gRPC when enabled, otherwise a no-op recorder.
func New(ctx context.Context, cfg config.MetricsConfig) (*Recorder, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return Noop(), nil
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create OTLP metric exporter")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create metric resource")
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	r, err := NewWithProvider(provider)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	r.shutdown = provider.Shutdown
	return r, nil
}

// Noop returns a Recorder that drops everything.
func Noop() *Recorder {
	r, err := NewWithProvider(noop.NewMeterProvider())
	if err != nil {
		// the noop provider never fails to create instruments
		panic(err)
	}
	return r
}

// NewWithProvider creates the instruments on an existing provider.
func NewWithProvider(provider metric.MeterProvider) (*Recorder, error) {
	meter := provider.Meter(serviceName)
	r := &Recorder{}

	var err error
	if r.credentialsIssued, err = meter.Int64Counter(
		"tara_credentials_issued_total",
		metric.WithDescription("Join credentials issued"),
		metric.WithUnit("{credential}"),
	); err != nil {
		return nil, errors.Wrap(err, "create credentials issued counter")
	}
	if r.credentialsFailed, err = meter.Int64Counter(
		"tara_credentials_failed_total",
		metric.WithDescription("Credential requests that failed"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, errors.Wrap(err, "create credentials failed counter")
	}
	if r.feedbackSaved, err = meter.Int64Counter(
		"tara_feedback_saved_total",
		metric.WithDescription("Feedback submissions persisted"),
		metric.WithUnit("{submission}"),
	); err != nil {
		return nil, errors.Wrap(err, "create feedback saved counter")
	}
	if r.feedbackFailed, err = meter.Int64Counter(
		"tara_feedback_failed_total",
		metric.WithDescription("Feedback submissions that could not be persisted"),
		metric.WithUnit("{submission}"),
	); err != nil {
		return nil, errors.Wrap(err, "create feedback failed counter")
	}
	if r.callsEnded, err = meter.Int64Counter(
		"tara_calls_ended_total",
		metric.WithDescription("Calls that left the in-call state"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, errors.Wrap(err, "create calls ended counter")
	}
	if r.callDuration, err = meter.Float64Histogram(
		"tara_call_duration_seconds",
		metric.WithDescription("Time spent in call"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, errors.Wrap(err, "create call duration histogram")
	}

	return r, nil
}

func (r *Recorder) CredentialIssued(ctx context.Context, agent string) {
	r.credentialsIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (r *Recorder) CredentialFailed(ctx context.Context, reason string) {
	r.credentialsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (r *Recorder) FeedbackSaved(ctx context.Context, agent string) {
	r.feedbackSaved.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (r *Recorder) FeedbackFailed(ctx context.Context, agent string) {
	r.feedbackFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// CallEnded records one call leaving InCall.
func (r *Recorder) CallEnded(ctx context.Context, reason string, seconds float64) {
	opt := metric.WithAttributes(attribute.String("reason", reason))
	r.callsEnded.Add(ctx, 1, opt)
	r.callDuration.Record(ctx, seconds, opt)
}

// Close flushes pending metrics when an exporter is attached.
func (r *Recorder) Close(ctx context.Context) error {
	if r.shutdown == nil {
		return nil
	}
	return r.shutdown(ctx)
}
