package runtime

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-tts/internal/config"
	"go.opentelemetry.io/otel"
)

func TestTelemetryServesMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Mode = "mock"
	tel, err := newTelemetry(context.Background(), cfg, "test", newLogger())
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	defer tel.Shutdown(context.Background())

	counter, err := otel.Meter("test").Int64Counter("loqa.tts.test_events")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	tel.Metrics.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "loqa_tts_test_events_total") {
		t.Fatalf("counter missing from scrape:\n%s", body)
	}
}

func TestSpanExporterSelection(t *testing.T) {
	exp, name, err := spanExporter(context.Background(), config.TelemetryConfig{})
	if err != nil || exp != nil || name != "" {
		t.Fatalf("expected no exporter, got %v %q %v", exp, name, err)
	}
	exp, name, err = spanExporter(context.Background(), config.TelemetryConfig{StdoutTraces: true})
	if err != nil || exp == nil || name != "stdout" {
		t.Fatalf("expected stdout exporter, got %v %q %v", exp, name, err)
	}
	_ = exp.Shutdown(context.Background())
}
