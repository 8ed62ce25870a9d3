// Package tracing wires OpenTelemetry for the Lambdas: X-Ray tracer provider
// and propagator at start-up, and small span helpers at call sites.
package tracing

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Init installs the X-Ray tracer provider and propagators as the global defaults.
func Init(ctx context.Context) (*sdktrace.TracerProvider, error) {
	tp, err := xrayconfig.NewTracerProvider(ctx)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)

	// X-Ray propagator so outbound HTTP calls carry the trace header
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		xray.Propagator{},
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// RecordError records err on span and marks the span as failed.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// MessageID returns the span attribute for a mailbox message id.
func MessageID(id string) attribute.KeyValue {
	return attribute.String("message_id", id)
}

// AttachmentCount returns the span attribute for a number of attachments.
func AttachmentCount(n int) attribute.KeyValue {
	return attribute.Int("attachment_count", n)
}

// MessageCount returns the span attribute for a number of messages.
func MessageCount(n int) attribute.KeyValue {
	return attribute.Int("message_count", n)
}

// ServiceID returns the span attribute for an invoice portal service id.
func ServiceID(id string) attribute.KeyValue {
	return attribute.String("service_id", id)
}

// YearMonth returns the span attribute for a billing or search month.
func YearMonth(ym string) attribute.KeyValue {
	return attribute.String("year_month", ym)
}
