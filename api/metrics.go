package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	transferSpanName    = "api.transfer"
	transferEventName   = "transfer.request"
	transferEventDomain = "unitask"
)

// transferRequestMetrics records timings and outcomes for the transfer
// route. It emits one structured observability.event log line and one
// span per request.
type transferRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration     time.Duration
	transferDuration time.Duration
	tasksRequested   int
	tasksTransferred int
	syncEnabled      bool
	errorStage       string
}

func newTransferRequestMetrics(ctx context.Context, logger *log.Logger) (*transferRequestMetrics, context.Context) {
	tracer := otel.Tracer("unitask/api")
	spanCtx, span := tracer.Start(ctx, transferSpanName)
	return &transferRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *transferRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *transferRequestMetrics) ObserveTransfer(d time.Duration) {
	if d > 0 {
		m.transferDuration = d
	}
}

func (m *transferRequestMetrics) SetTasksRequested(n int) {
	if n < 0 {
		n = 0
	}
	m.tasksRequested = n
}

func (m *transferRequestMetrics) SetTasksTransferred(n int) {
	if n < 0 {
		n = 0
	}
	m.tasksTransferred = n
}

func (m *transferRequestMetrics) SetSyncEnabled(enabled bool) {
	m.syncEnabled = enabled
}

func (m *transferRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the observability event.
func (m *transferRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	attrs := map[string]any{
		"http.route":                 "/api/transfer",
		"http.status_code":           status,
		"unitask.transfer.total_ms":  totalMs,
		"unitask.transfer.requested": m.tasksRequested,
		"unitask.transfer.created":   m.tasksTransferred,
		"unitask.transfer.sync":      m.syncEnabled,
	}
	if m.authDuration > 0 {
		attrs["unitask.transfer.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.transferDuration > 0 {
		attrs["unitask.transfer.transfer_ms"] = durationToMillis(m.transferDuration)
	}
	if m.errorStage != "" {
		attrs["unitask.transfer.error_stage"] = m.errorStage
	}

	if m.span != nil {
		m.span.SetAttributes(
			attribute.String("http.route", "/api/transfer"),
			attribute.Int("http.status_code", status),
			attribute.Float64("unitask.transfer.total_ms", totalMs),
			attribute.Int("unitask.transfer.requested", m.tasksRequested),
			attribute.Int("unitask.transfer.created", m.tasksTransferred),
			attribute.Bool("unitask.transfer.sync", m.syncEnabled),
		)
		if m.errorStage != "" {
			m.span.SetAttributes(attribute.String("unitask.transfer.error_stage", m.errorStage))
		}
		spanAttrs := make([]attribute.KeyValue, 0, len(attrs))
		for k, v := range attrs {
			switch val := v.(type) {
			case string:
				spanAttrs = append(spanAttrs, attribute.String(k, val))
			case int:
				spanAttrs = append(spanAttrs, attribute.Int(k, val))
			case float64:
				spanAttrs = append(spanAttrs, attribute.Float64(k, val))
			case bool:
				spanAttrs = append(spanAttrs, attribute.Bool(k, val))
			}
		}
		m.span.AddEvent("observability.event", trace.WithAttributes(spanAttrs...))
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"event.name":      transferEventName,
		"event.domain":    transferEventDomain,
		"attributes":      attrs,
		"severity_text":   "INFO",
		"severity_number": 9,
	}
	if m.span != nil && m.span.SpanContext().IsValid() {
		fields["trace_id"] = m.span.SpanContext().TraceID().String()
		fields["span_id"] = m.span.SpanContext().SpanID().String()
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
