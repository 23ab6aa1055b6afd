package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/master-pd/MARPD-MAX/config"
	"github.com/master-pd/MARPD-MAX/models"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider records wallet core metrics with OpenTelemetry. It
// satisfies service.Metrics; every method is a no-op until Initialize succeeds
// with metrics enabled.
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	enabled       bool
	mu            sync.RWMutex

	operationsCounter      metric.Int64Counter
	operationDurationHist  metric.Float64Histogram
	roundsCounter          metric.Int64Counter
	paymentDecisionCounter metric.Int64Counter
	integrityFaultCounter  metric.Int64Counter
	natsPublishedCounter   metric.Int64Counter
}

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry meter provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	exporter, err := mp.newExporter(ctx)
	if err != nil {
		return err
	}
	if exporter == nil {
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMillis)*time.Millisecond),
			),
		),
	)
	otel.SetMeterProvider(mp.meterProvider)

	if err := mp.createInstruments(mp.meterProvider.Meter(mp.config.OTelServiceName)); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	mp.enabled = true
	log.WithField("exporter", mp.config.OTelExporterType).Info("Metrics provider initialized")
	return nil
}

// newExporter returns nil for the "none" exporter type
func (mp *MetricsProvider) newExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err := stdoutmetric.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		return exporter, nil

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exporter, nil

	case "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}
}

// createInstruments creates all metric instruments from meter
func (mp *MetricsProvider) createInstruments(meter metric.Meter) error {
	var err error
	mp.meter = meter

	mp.operationsCounter, err = meter.Int64Counter(
		OperationsTotal,
		metric.WithDescription("Total number of ledger operations by kind and outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create operations counter: %w", err)
	}

	mp.operationDurationHist, err = meter.Float64Histogram(
		OperationDuration,
		metric.WithDescription("Duration of ledger operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
	)
	if err != nil {
		return fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	mp.roundsCounter, err = meter.Int64Counter(
		RoundsTotal,
		metric.WithDescription("Total number of settled game rounds"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create rounds counter: %w", err)
	}

	mp.paymentDecisionCounter, err = meter.Int64Counter(
		PaymentDecisionsTotal,
		metric.WithDescription("Total number of decided payment requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create payment decisions counter: %w", err)
	}

	mp.integrityFaultCounter, err = meter.Int64Counter(
		IntegrityFaultsTotal,
		metric.WithDescription("Total number of detected integrity faults"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create integrity faults counter: %w", err)
	}

	mp.natsPublishedCounter, err = meter.Int64Counter(
		NATSMessagesPublishedTotal,
		metric.WithDescription("Total number of events forwarded to NATS"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create NATS published counter: %w", err)
	}

	return nil
}

// Shutdown flushes and stops the meter provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.enabled = false
	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordOperation records an applied, duplicate or failed ledger operation
func (mp *MetricsProvider) RecordOperation(kind models.OperationKind, outcome string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(LabelKind, string(kind)),
		attribute.String(LabelOutcome, outcome),
	)
	mp.operationsCounter.Add(context.Background(), 1, attrs)
	mp.operationDurationHist.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordRound records a resolved or refunded round
func (mp *MetricsProvider) RecordRound(game string, status models.RoundStatus) {
	if !mp.isEnabled() {
		return
	}

	mp.roundsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelGame, game),
			attribute.String(LabelStatus, string(status)),
		),
	)
}

// RecordPaymentDecision records a payment request leaving pending
func (mp *MetricsProvider) RecordPaymentDecision(direction models.PaymentDirection, status models.PaymentStatus) {
	if !mp.isEnabled() {
		return
	}

	mp.paymentDecisionCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelDirection, string(direction)),
			attribute.String(LabelStatus, string(status)),
		),
	)
}

// RecordIntegrityFault records a detected integrity fault
func (mp *MetricsProvider) RecordIntegrityFault(reason string) {
	if !mp.isEnabled() {
		return
	}

	mp.integrityFaultCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelReason, reason),
		),
	)
}

// RecordEventPublished records an event forwarded to NATS
func (mp *MetricsProvider) RecordEventPublished(eventType string) {
	if !mp.isEnabled() {
		return
	}

	mp.natsPublishedCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelEventType, eventType),
		),
	)
}

func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.enabled
}
