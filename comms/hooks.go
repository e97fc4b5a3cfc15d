package comms

import (
	"fmt"
	"strings"
)

// Logger provides printf-style debug logging hooks for the communicator.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging backends.
// *zap.SugaredLogger satisfies it directly.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// TraceAttribute is a tracing attribute attached to communicator spans.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans that wrap blocking communicator activity.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// MetricHook captures communicator telemetry events.
type MetricHook interface {
	CollectiveSubmitted(op string, attrs map[string]string)
	CollectiveFailed(op string, err error, attrs map[string]string)
	RequestPosted(kind string, attrs map[string]string)
	RequestFailed(kind string, err error, attrs map[string]string)
	WaitCompleted(requests int, attrs map[string]string)
	WaitTimedOut(err error, attrs map[string]string)
	StreamAborted(err error, attrs map[string]string)
}

const (
	labelRank = "rank"
	labelOp   = "op"
	labelKind = "kind"
)

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

func (c *Communicator) logEvent(event string, fields ...logField) {
	if c == nil {
		return
	}
	if c.structuredLogger != nil {
		kv := make([]any, 0, len(fields)*2+4)
		kv = append(kv, "event", event, "rank", c.rank)
		for _, field := range fields {
			if field.key == "" {
				continue
			}
			kv = append(kv, field.key, field.value)
		}
		c.structuredLogger.Debugw("rankcomm communicator", kv...)
		return
	}
	if c.logger == nil {
		return
	}
	var b strings.Builder
	b.WriteString(event)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		b.WriteString(" ")
		b.WriteString(field.key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(field.value))
	}
	c.logger.Debugf("communicator %s", b.String())
}

func (c *Communicator) metricAttrs(fields ...logField) map[string]string {
	attrs := make(map[string]string, len(fields)+1)
	attrs[labelRank] = fmt.Sprint(c.rank)
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs[field.key] = fmt.Sprint(field.value)
	}
	return attrs
}

func (c *Communicator) metricCollectiveSubmitted(op string) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.CollectiveSubmitted(op, c.metricAttrs(logKV(labelOp, op)))
}

func (c *Communicator) metricCollectiveFailed(op string, err error) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.CollectiveFailed(op, err, c.metricAttrs(logKV(labelOp, op)))
}

func (c *Communicator) metricRequestPosted(kind string) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.RequestPosted(kind, c.metricAttrs(logKV(labelKind, kind)))
}

func (c *Communicator) metricRequestFailed(kind string, err error) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.RequestFailed(kind, err, c.metricAttrs(logKV(labelKind, kind)))
}

func (c *Communicator) metricRequestCompleted(requests int) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.WaitCompleted(requests, c.metricAttrs())
}

func (c *Communicator) metricWaitTimedOut(err error) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.WaitTimedOut(err, c.metricAttrs())
}

func (c *Communicator) metricStreamAborted(err error) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.StreamAborted(err, c.metricAttrs())
}

func (c *Communicator) startSpan(name string, fields ...logField) Span {
	if c == nil || c.tracer == nil {
		return nil
	}
	attrs := make([]TraceAttribute, 0, len(fields)+1)
	attrs = append(attrs, TraceAttribute{Key: labelRank, Value: c.rank})
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs = append(attrs, TraceAttribute{Key: field.key, Value: field.value})
	}
	return c.tracer.StartSpan(name, attrs...)
}

func (c *Communicator) finishSpan(span Span, err error) {
	if span == nil {
		return
	}
	span.End(err)
}
