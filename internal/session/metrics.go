package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	utterances metric.Int64Counter
	segments   metric.Int64Counter
	failures   metric.Int64Counter
	errors     metric.Int64Counter
	audioBytes metric.Int64Counter
	latency    metric.Float64Histogram
}

var (
	metricsOnce sync.Once
	instruments *metrics
)

// sharedMetrics registers the session instruments once against the global
// meter provider. Instruments that fail to register stay nil and are skipped.
func sharedMetrics() *metrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/loqalabs/loqa-tts/session")
		m := &metrics{}
		m.utterances, _ = meter.Int64Counter("loqa.tts.utterances", metric.WithDescription("Completed, abandoned and failed utterances"))
		m.segments, _ = meter.Int64Counter("loqa.tts.segments", metric.WithDescription("Segments sent to the engine"))
		m.failures, _ = meter.Int64Counter("loqa.tts.segment_failures", metric.WithDescription("Segments skipped after an engine error"))
		m.errors, _ = meter.Int64Counter("loqa.tts.errors", metric.WithDescription("Error events sent to clients"))
		m.audioBytes, _ = meter.Int64Counter("loqa.tts.audio_bytes", metric.WithUnit("By"))
		m.latency, _ = meter.Float64Histogram("loqa.tts.synthesis_latency", metric.WithUnit("ms"))
		instruments = m
	})
	return instruments
}

func (m *metrics) recordSegment(ctx context.Context, elapsed time.Duration, err error) {
	if m.segments != nil {
		m.segments.Add(ctx, 1)
	}
	if err != nil && m.failures != nil {
		m.failures.Add(ctx, 1)
	}
	if m.latency != nil {
		m.latency.Record(ctx, float64(elapsed.Microseconds())/1000)
	}
}

func (m *metrics) recordUtterance(ctx context.Context, u Utterance) {
	attrs := metric.WithAttributes(attribute.String("kind", u.Kind), attribute.String("outcome", u.Outcome))
	if m.utterances != nil {
		m.utterances.Add(ctx, 1, attrs)
	}
	if m.audioBytes != nil && u.AudioBytes > 0 {
		m.audioBytes.Add(ctx, int64(u.AudioBytes))
	}
}

func (m *metrics) recordError(ctx context.Context, code string) {
	if m.errors != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	}
}
