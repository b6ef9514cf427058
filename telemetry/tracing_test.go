package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing("", "streamsync", "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should stay disabled without an endpoint")
	}
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestStartSpanCarriesCorrelation(t *testing.T) {
	rec := recordSpans(t)
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "op", HTTPMethodAttr("GET"))
	span.End()

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	found := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		found[string(kv.Key)] = kv.Value.Emit()
	}
	if found["correlation_id"] != "corr-1" || found["http.method"] != "GET" {
		t.Errorf("unexpected attributes %v", found)
	}
}

func TestSpanStatusHelpers(t *testing.T) {
	rec := recordSpans(t)
	ctx := context.Background()

	_, s1 := StartSpan(ctx, "test", "server-error")
	SetSpanHTTPStatus(s1, 503)
	s1.End()
	_, s2 := StartSpan(ctx, "test", "client-error")
	SetSpanHTTPStatus(s2, 404)
	s2.End()
	_, s3 := StartSpan(ctx, "test", "failed")
	RecordError(s3, errors.New("boom"))
	s3.End()
	_, s4 := StartSpan(ctx, "test", "ok")
	SetSpanSuccess(s4)
	s4.End()

	want := []codes.Code{codes.Error, codes.Unset, codes.Error, codes.Ok}
	spans := rec.Ended()
	if len(spans) != len(want) {
		t.Fatalf("expected %d spans, got %d", len(want), len(spans))
	}
	for i, s := range spans {
		if s.Status().Code != want[i] {
			t.Errorf("%s: status %v, want %v", s.Name(), s.Status().Code, want[i])
		}
	}
}
