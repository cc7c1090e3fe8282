package tracer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"webscout/internal/infra/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: false}, Options{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer shutdown(context.Background())

	if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", otel.GetTracerProvider())
	}
}

func TestSetupNoopExporters(t *testing.T) {
	for _, exporter := range []string{"noop", ""} {
		shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: exporter}, Options{})
		if err != nil {
			t.Fatalf("Setup(%q): %v", exporter, err)
		}
		if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
			t.Errorf("exporter %q: expected noop provider, got %T", exporter, otel.GetTracerProvider())
		}
		shutdown(context.Background())
	}
}

func TestSetupStdoutWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout"},
		Options{ServiceVersion: "1.2.3", Writer: &buf})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := StartSpan(context.Background(), "websearch.fetch_page")
	span.SetAttributes(StringAttr("page.url", "https://example.com/"))
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"websearch.fetch_page", "https://example.com/", "service.name", "webscout", "1.2.3"} {
		if !strings.Contains(out, want) {
			t.Errorf("exported span missing %q", want)
		}
	}
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "jaeger"}, Options{})
	if err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestServiceResourceWithoutVersion(t *testing.T) {
	res := serviceResource("")
	if _, ok := res.Set().Value("service.version"); ok {
		t.Error("service.version should be absent")
	}
	if v, ok := res.Set().Value("service.name"); !ok || v.AsString() != "webscout" {
		t.Errorf("service.name = %v", v)
	}
}

func TestStartSpanAndHelpers(t *testing.T) {
	otel.SetTracerProvider(noop.NewTracerProvider())

	ctx, span := StartSpan(context.Background(), "test-span")
	if ctx == nil {
		t.Error("context should not be nil")
	}

	// These should not panic
	SetOK(span)
	RecordError(span, errors.New("test error"))
	span.End()
}

func TestAttrHelpers(t *testing.T) {
	if s := StringAttr("key", "value"); string(s.Key) != "key" || s.Value.AsString() != "value" {
		t.Errorf("StringAttr = %v", s)
	}
	if i := IntAttr("count", 42); i.Value.AsInt64() != 42 {
		t.Errorf("IntAttr = %v", i)
	}
	if b := BoolAttr("retryable", true); !b.Value.AsBool() {
		t.Errorf("BoolAttr = %v", b)
	}
}
