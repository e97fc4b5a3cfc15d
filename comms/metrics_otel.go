package comms

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter               metric.Meter
	collectiveSubmitted metric.Int64Counter
	collectiveFailed    metric.Int64Counter
	requestPosted       metric.Int64Counter
	requestFailed       metric.Int64Counter
	requestsCompleted   metric.Int64Counter
	waitTimeouts        metric.Int64Counter
	streamAborts        metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter
// measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/rocketbitz/rankcomm-go/comms"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	collectiveSubmitted, err := meter.Int64Counter("rankcomm.collective.submitted")
	if err != nil {
		return nil, err
	}
	collectiveFailed, err := meter.Int64Counter("rankcomm.collective.failed")
	if err != nil {
		return nil, err
	}
	requestPosted, err := meter.Int64Counter("rankcomm.request.posted")
	if err != nil {
		return nil, err
	}
	requestFailed, err := meter.Int64Counter("rankcomm.request.failed")
	if err != nil {
		return nil, err
	}
	requestsCompleted, err := meter.Int64Counter("rankcomm.requests.completed")
	if err != nil {
		return nil, err
	}
	waitTimeouts, err := meter.Int64Counter("rankcomm.wait.timeouts")
	if err != nil {
		return nil, err
	}
	streamAborts, err := meter.Int64Counter("rankcomm.stream.aborts")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:               meter,
		collectiveSubmitted: collectiveSubmitted,
		collectiveFailed:    collectiveFailed,
		requestPosted:       requestPosted,
		requestFailed:       requestFailed,
		requestsCompleted:   requestsCompleted,
		waitTimeouts:        waitTimeouts,
		streamAborts:        streamAborts,
	}, nil
}

// CollectiveSubmitted records a collective operation accepted by the transport.
func (o *OTelMetrics) CollectiveSubmitted(op string, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelOp, op))
	o.collectiveSubmitted.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// CollectiveFailed records a collective submission rejected by the transport.
func (o *OTelMetrics) CollectiveFailed(op string, _ error, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelOp, op))
	o.collectiveFailed.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// RequestPosted records a point-to-point request handed to the transport.
func (o *OTelMetrics) RequestPosted(kind string, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelKind, kind))
	o.requestPosted.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// RequestFailed records a point-to-point submission the transport rejected.
func (o *OTelMetrics) RequestFailed(kind string, _ error, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelKind, kind))
	o.requestFailed.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

// WaitCompleted counts requests observed complete by a waitall call.
func (o *OTelMetrics) WaitCompleted(requests int, attrs map[string]string) {
	o.requestsCompleted.Add(context.Background(), int64(requests), metric.WithAttributes(otelAttrs(attrs)...))
}

// WaitTimedOut records a waitall that gave up without progress.
func (o *OTelMetrics) WaitTimedOut(_ error, attrs map[string]string) {
	o.waitTimeouts.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

// StreamAborted records an abort triggered by an asynchronous transport error.
func (o *OTelMetrics) StreamAborted(_ error, attrs map[string]string) {
	o.streamAborts.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := []attribute.KeyValue{
		attribute.String(labelRank, attrs[labelRank]),
	}
	return kvs
}
