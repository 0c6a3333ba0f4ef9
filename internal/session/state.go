package session

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/loqalabs/loqa-tts/internal/audio"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/sentence"
)

type Mode int

const (
	Idle Mode = iota
	Streaming
	OneShot
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case OneShot:
		return "one-shot"
	default:
		return "unknown"
	}
}

const (
	KindOneShot   = "one-shot"
	KindStreaming = "streaming"

	OutcomeCompleted = "completed"
	OutcomeAbandoned = "abandoned"
	OutcomeFailed    = "failed"
)

// state is the session's mutable state. Transitions take the current value
// and return the next one.
type state struct {
	mode     Mode
	voice    string
	language string
	utt      *utterance
}

// utterance is the per-request pipeline. A new one is created for every
// synthesize or synthesize-start, so nothing carries over between requests.
type utterance struct {
	segmenter    *sentence.Segmenter
	buffer       *sentence.Buffer
	audioStarted bool
	format       audio.Format
	summary      Utterance
}

// Utterance summarizes one request for recorders.
type Utterance struct {
	SessionID  string
	Kind       string
	Voice      string
	Language   string
	Chars      int
	Segments   int
	Failed     int
	AudioBytes int
	Outcome    string
	StartedAt  time.Time
	Duration   time.Duration
}

func (s *Session) newUtterance(ctx context.Context, st state, kind string) *utterance {
	u := &utterance{
		segmenter: sentence.NewSegmenter(s.opts.Split),
		buffer:    sentence.NewBuffer(s.opts.MinChars),
		summary: Utterance{
			SessionID: s.id,
			Kind:      kind,
			Voice:     s.opts.Catalog.Resolve(st.voice),
			Language:  st.language,
			StartedAt: time.Now().UTC(),
		},
	}
	s.recorder.UtteranceStarted(ctx, u.summary)
	return u
}

func (s *Session) finishUtterance(ctx context.Context, u *utterance, outcome string) {
	u.summary.Outcome = outcome
	u.summary.Duration = since(u.summary.StartedAt)
	s.metrics.recordUtterance(ctx, u.summary)
	s.recorder.UtteranceFinished(ctx, u.summary)
}

// withVoice applies a voice selection. Overrides persist for the rest of the
// session.
func (s *Session) withVoice(st state, sel *protocol.VoiceSelection) state {
	if sel == nil {
		return st
	}
	if sel.Name != "" {
		st.voice = sel.Name
	}
	if sel.Language != "" {
		st.language = config.NormalizeLanguage(sel.Language, s.opts.DefaultLanguage)
	}
	return st
}

func (s *Session) onSynthesize(ctx context.Context, st state, msg protocol.Synthesize) (state, error) {
	if st.mode == Streaming {
		s.logger.Debug("ignoring synthesize while streaming")
		return st, nil
	}

	st = s.withVoice(st, msg.Voice)
	st.mode = OneShot
	st.utt = s.newUtterance(ctx, st, KindOneShot)
	s.state = st

	u := st.utt
	u.summary.Chars = utf8.RuneCountInString(msg.Text)
	for _, sent := range u.segmenter.AddChunk(msg.Text) {
		if err := s.process(ctx, st, sent); err != nil {
			return st, err
		}
	}
	if rest, ok := u.segmenter.Finish(); ok {
		if err := s.process(ctx, st, rest); err != nil {
			return st, err
		}
	}
	if err := s.flush(ctx, st); err != nil {
		return st, err
	}
	if u.audioStarted {
		if err := s.send(protocol.AudioStop{}); err != nil {
			return st, err
		}
	}
	s.finishUtterance(ctx, u, OutcomeCompleted)
	return state{mode: Idle, voice: st.voice, language: st.language}, nil
}

func (s *Session) onSynthesizeStart(ctx context.Context, st state, msg protocol.SynthesizeStart) (state, error) {
	if !s.opts.Streaming {
		s.logger.Debug("ignoring synthesize-start, streaming disabled")
		return st, nil
	}

	if prev := st.utt; prev != nil {
		// A restart abandons pending text; audio already sent is closed off.
		if prev.audioStarted {
			if err := s.send(protocol.AudioStop{}); err != nil {
				return st, err
			}
		}
		s.finishUtterance(ctx, prev, OutcomeAbandoned)
		st.utt = nil
	}

	st = s.withVoice(st, msg.Voice)
	st.mode = Streaming
	st.utt = s.newUtterance(ctx, st, KindStreaming)
	s.logger.Debug("stream started",
		slog.String("voice", st.utt.summary.Voice),
		slog.String("language", st.language))
	return st, nil
}

func (s *Session) onSynthesizeChunk(ctx context.Context, st state, msg protocol.SynthesizeChunk) (state, error) {
	if st.mode != Streaming {
		return st, nil
	}
	st.utt.summary.Chars += utf8.RuneCountInString(msg.Text)
	for _, sent := range st.utt.segmenter.AddChunk(msg.Text) {
		if err := s.process(ctx, st, sent); err != nil {
			return st, err
		}
	}
	return st, nil
}

func (s *Session) onSynthesizeStop(ctx context.Context, st state) (state, error) {
	if st.mode != Streaming {
		return st, nil
	}
	u := st.utt
	if rest, ok := u.segmenter.Finish(); ok {
		if err := s.process(ctx, st, rest); err != nil {
			return st, err
		}
	}
	if err := s.flush(ctx, st); err != nil {
		return st, err
	}
	if u.audioStarted {
		if err := s.send(protocol.AudioStop{}); err != nil {
			return st, err
		}
	}
	if err := s.send(protocol.SynthesizeStopped{}); err != nil {
		return st, err
	}
	s.finishUtterance(ctx, u, OutcomeCompleted)
	return state{mode: Idle, voice: st.voice, language: st.language}, nil
}
