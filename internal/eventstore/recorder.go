package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts/internal/session"
)

const (
	EventUtteranceStarted  = "utterance.started"
	EventUtteranceFinished = "utterance.finished"
)

// utteranceRecord is the JSON payload stored for utterance events.
type utteranceRecord struct {
	Kind       string `json:"kind"`
	Voice      string `json:"voice"`
	Language   string `json:"language"`
	Chars      int    `json:"chars,omitempty"`
	Segments   int    `json:"segments,omitempty"`
	Failed     int    `json:"failed_segments,omitempty"`
	AudioBytes int    `json:"audio_bytes,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Recorder writes session utterances into the store.
type Recorder struct {
	store   *Store
	timeout time.Duration
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, timeout: 2 * time.Second}
}

func (r *Recorder) UtteranceStarted(ctx context.Context, u session.Utterance) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.store.AppendSession(ctx, u.SessionID, u.Voice, u.Language); err != nil {
		r.store.log.Warn("failed to record session", slog.String("error", err.Error()))
		return
	}
	r.append(ctx, u, EventUtteranceStarted, utteranceRecord{Kind: u.Kind, Voice: u.Voice, Language: u.Language})
}

func (r *Recorder) UtteranceFinished(ctx context.Context, u session.Utterance) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	r.append(ctx, u, EventUtteranceFinished, utteranceRecord{
		Kind:       u.Kind,
		Voice:      u.Voice,
		Language:   u.Language,
		Chars:      u.Chars,
		Segments:   u.Segments,
		Failed:     u.Failed,
		AudioBytes: u.AudioBytes,
		Outcome:    u.Outcome,
		DurationMS: u.Duration.Milliseconds(),
	})
}

func (r *Recorder) append(ctx context.Context, u session.Utterance, eventType string, rec utteranceRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		r.store.log.Warn("failed to encode utterance", slog.String("error", err.Error()))
		return
	}
	if err := r.store.AppendEvent(ctx, Event{SessionID: u.SessionID, Type: eventType, Payload: payload}); err != nil {
		r.store.log.Warn("failed to record utterance", slog.String("error", err.Error()))
	}
}
