package metrics

import (
	"context"
	"fmt"

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

	"content-eval/internal/config"
)

const (
	ServiceName    = "content-eval"
	ServiceVersion = "1.0.0"
)

// Outcome 取值
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeSkipped  = "skipped"
	OutcomeCanceled = "canceled"
)

// Setup 启用时安装 OTLP gRPC 导出的 MeterProvider，否则返回 noop meter
// 返回的 shutdown 需要在退出时调用
func Setup(ctx context.Context, cfg config.MetricsConfig) (metric.Meter, func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return noop.NewMeterProvider().Meter(ServiceName), func(context.Context) error { return nil }, nil
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
		return nil, nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	return provider.Meter(ServiceName), provider.Shutdown, nil
}

// Recorder 业务指标
type Recorder struct {
	generations metric.Int64Counter
	cost        metric.Float64Counter
	latency     metric.Float64Histogram
	evaluations metric.Int64Counter
	publishable metric.Int64Counter
	sweeps      metric.Int64Counter
}

func NewRecorder(meter metric.Meter) (*Recorder, error) {
	generations, err := meter.Int64Counter(
		"content_eval_generations_total",
		metric.WithDescription("Generation attempts by provider, model and outcome"),
		metric.WithUnit("{generation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating generations counter: %w", err)
	}

	cost, err := meter.Float64Counter(
		"content_eval_generation_cost_usd",
		metric.WithDescription("Estimated generation cost in USD"),
		metric.WithUnit("USD"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cost counter: %w", err)
	}

	latency, err := meter.Float64Histogram(
		"content_eval_generation_latency_ms",
		metric.WithDescription("Provider call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating latency histogram: %w", err)
	}

	evaluations, err := meter.Int64Counter(
		"content_eval_evaluations_total",
		metric.WithDescription("Submitted blind evaluations"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating evaluations counter: %w", err)
	}

	publishable, err := meter.Int64Counter(
		"content_eval_would_publish_total",
		metric.WithDescription("Evaluations marked yes or with_edits"),
		metric.WithUnit("{evaluation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating would-publish counter: %w", err)
	}

	sweeps, err := meter.Int64Counter(
		"content_eval_sweeps_total",
		metric.WithDescription("Finished generation sweeps by outcome"),
		metric.WithUnit("{sweep}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sweeps counter: %w", err)
	}

	return &Recorder{
		generations: generations,
		cost:        cost,
		latency:     latency,
		evaluations: evaluations,
		publishable: publishable,
		sweeps:      sweeps,
	}, nil
}

// Nop 不导出任何数据的 Recorder，用于测试
func Nop() *Recorder {
	r, _ := NewRecorder(noop.NewMeterProvider().Meter(ServiceName))
	return r
}

func (r *Recorder) Generation(ctx context.Context, provider, model, outcome string, costUSD, latencyMs float64) {
	opt := metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	)
	r.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	))
	if outcome == OutcomeSkipped {
		return
	}
	r.latency.Record(ctx, latencyMs, opt)
	if costUSD > 0 {
		r.cost.Add(ctx, costUSD, opt)
	}
}

func (r *Recorder) Evaluation(ctx context.Context, publishable bool) {
	r.evaluations.Add(ctx, 1)
	if publishable {
		r.publishable.Add(ctx, 1)
	}
}

func (r *Recorder) Sweep(ctx context.Context, outcome string) {
	r.sweeps.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
