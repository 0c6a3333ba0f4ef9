// Package session implements the per-connection synthesis state machine.
//
// A Session consumes typed inbound events one at a time. Streamed text is
// split into sentences, coalesced into segments, synthesized through a
// shared engine slot and written back as framed audio.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/sentence"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Sink delivers outbound events to the client.
type Sink interface {
	Send(ev protocol.Outbound) error
}

// Synthesizer turns one segment into audio. *tts.Worker implements it.
type Synthesizer interface {
	Submit(ctx context.Context, req tts.Request) (tts.Audio, error)
}

// Recorder observes utterance lifecycle. Recorders run on the session
// goroutine and should return quickly.
type Recorder interface {
	UtteranceStarted(ctx context.Context, u Utterance)
	UtteranceFinished(ctx context.Context, u Utterance)
}

// Recorders fans out to every non-nil recorder.
func Recorders(rs ...Recorder) Recorder {
	var out multiRecorder
	for _, r := range rs {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

type multiRecorder []Recorder

func (m multiRecorder) UtteranceStarted(ctx context.Context, u Utterance) {
	for _, r := range m {
		r.UtteranceStarted(ctx, u)
	}
}

func (m multiRecorder) UtteranceFinished(ctx context.Context, u Utterance) {
	for _, r := range m {
		r.UtteranceFinished(ctx, u)
	}
}

// Options configure every session created by a server.
type Options struct {
	Info            protocol.Info
	Catalog         tts.Catalog
	DefaultLanguage string
	Streaming       bool
	MinChars        int
	Framer          audio.Framer
	Split           sentence.SplitFunc
}

// OptionsFromConfig fills the config-derived fields. Info and Catalog come
// from the loaded engine.
func OptionsFromConfig(cfg config.Config, catalog tts.Catalog, info protocol.Info) Options {
	return Options{
		Info:            info,
		Catalog:         catalog,
		DefaultLanguage: cfg.Synthesis.DefaultLanguage,
		Streaming:       cfg.Synthesis.Streaming,
		MinChars:        cfg.Synthesis.MinChars,
		Framer:          audio.NewFramer(cfg.Synthesis.ChunkBytes),
	}
}

type Session struct {
	id       string
	opts     Options
	synth    Synthesizer
	sink     Sink
	recorder Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics

	state state
}

func New(id string, opts Options, synth Synthesizer, sink Sink, recorder Recorder, logger *slog.Logger) *Session {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Session{
		id:       id,
		opts:     opts,
		synth:    synth,
		sink:     sink,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "session"), slog.String("session_id", id)),
		tracer:   otel.Tracer("github.com/loqalabs/loqa-tts/session"),
		metrics:  sharedMetrics(),
		state:    state{mode: Idle, language: opts.DefaultLanguage},
	}
}

func (s *Session) ID() string { return s.id }

// Mode reports the current mode.
func (s *Session) Mode() Mode { return s.state.mode }

// Handle processes one inbound event. Failures while handling the event are
// reported to the client as an error event and leave the session idle; the
// returned error is non-nil only when the client can no longer be written to
// or ctx ended.
func (s *Session) Handle(ctx context.Context, in protocol.Inbound) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panic", slog.Any("panic", r))
			err = s.fail(ctx, &panicError{value: r})
		}
	}()

	next, err := s.dispatch(ctx, s.state, in)
	if err != nil {
		if isTerminal(ctx, err) {
			return err
		}
		return s.fail(ctx, err)
	}
	s.state = next
	return nil
}

// Fault reports a malformed event. The session returns to idle.
func (s *Session) Fault(ctx context.Context, err error) error {
	s.logger.Warn("protocol fault", slog.String("error", err.Error()))
	return s.fail(ctx, err)
}

// Close ends the session. An utterance still in flight is recorded as
// abandoned.
func (s *Session) Close(ctx context.Context) {
	if u := s.state.utt; u != nil {
		s.finishUtterance(ctx, u, OutcomeAbandoned)
	}
	s.state = state{mode: Idle, voice: s.state.voice, language: s.state.language}
}

func (s *Session) dispatch(ctx context.Context, st state, in protocol.Inbound) (state, error) {
	switch msg := in.(type) {
	case protocol.Describe:
		return st, s.send(s.opts.Info)
	case protocol.Synthesize:
		return s.onSynthesize(ctx, st, msg)
	case protocol.SynthesizeStart:
		return s.onSynthesizeStart(ctx, st, msg)
	case protocol.SynthesizeChunk:
		return s.onSynthesizeChunk(ctx, st, msg)
	case protocol.SynthesizeStop:
		return s.onSynthesizeStop(ctx, st)
	case protocol.Unknown:
		s.logger.Debug("ignoring unsupported event", slog.String("type", msg.Type))
		return st, nil
	default:
		return st, fmt.Errorf("unhandled inbound event %T", in)
	}
}

// fail reports err to the client and forces the session idle. Audio already
// started for the current utterance is closed first.
func (s *Session) fail(ctx context.Context, err error) error {
	code := errorCode(err)
	s.logger.Error("request failed", slog.String("error", err.Error()), slog.String("code", code))
	s.metrics.recordError(ctx, code)

	st := s.state
	s.state = state{mode: Idle, voice: st.voice, language: st.language}
	if u := st.utt; u != nil {
		if u.audioStarted {
			if sendErr := s.send(protocol.AudioStop{}); sendErr != nil {
				return sendErr
			}
		}
		s.finishUtterance(ctx, u, OutcomeFailed)
	}
	return s.send(protocol.Error{Text: err.Error(), Code: code})
}

func (s *Session) send(ev protocol.Outbound) error {
	if err := s.sink.Send(ev); err != nil {
		return &transportError{err: err}
	}
	return nil
}

func isTerminal(ctx context.Context, err error) bool {
	var te *transportError
	if errors.As(err, &te) {
		return true
	}
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

type nopRecorder struct{}

func (nopRecorder) UtteranceStarted(context.Context, Utterance)  {}
func (nopRecorder) UtteranceFinished(context.Context, Utterance) {}

func since(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return time.Since(t)
}
