package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// process buffers one sentence and synthesizes once enough text is waiting.
func (s *Session) process(ctx context.Context, st state, sent string) error {
	st.utt.buffer.Add(sent)
	if !st.utt.buffer.Ready() {
		return nil
	}
	return s.flush(ctx, st)
}

// flush synthesizes whatever is buffered. Engine failures skip the segment.
func (s *Session) flush(ctx context.Context, st state) error {
	u := st.utt
	text, ok := u.buffer.Flush()
	if !ok {
		return nil
	}

	req := tts.Request{Text: text, Voice: s.opts.Catalog.Resolve(st.voice), Language: st.language}
	ctx, span := s.tracer.Start(ctx, "session.synthesize", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("tts.voice", req.Voice),
		attribute.String("tts.language", req.Language),
		attribute.Int("tts.chars", len(text)),
	))
	defer span.End()

	s.logger.Debug("requesting synthesis", slog.String("text", preview(text)), slog.String("voice", req.Voice))
	started := time.Now()
	out, err := s.synth.Submit(ctx, req)
	s.metrics.recordSegment(ctx, time.Since(started), err)
	u.summary.Segments++
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isTerminal(ctx, err) {
			return err
		}
		u.summary.Failed++
		s.logger.Error("engine error", slog.String("error", err.Error()))
		return nil
	}
	if len(out.PCM) == 0 {
		return nil
	}

	if !u.audioStarted {
		u.format = audio.Mono16(out.Rate)
		if err := s.send(u.format.Start()); err != nil {
			return err
		}
		u.audioStarted = true
	}
	for _, chunk := range s.opts.Framer.Frame(audio.Mono16(out.Rate), out.PCM) {
		if err := s.send(chunk); err != nil {
			return err
		}
	}
	u.summary.AudioBytes += len(out.PCM)
	span.SetAttributes(attribute.Int("tts.pcm_bytes", len(out.PCM)))
	return nil
}

func preview(text string) string {
	const limit = 40
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}

var _ Sink = SinkFunc(nil)

// SinkFunc adapts a function to Sink.
type SinkFunc func(protocol.Outbound) error

func (f SinkFunc) Send(ev protocol.Outbound) error { return f(ev) }
