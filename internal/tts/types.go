package tts

import (
	"context"
	"errors"

	"github.com/loqalabs/loqa-tts/internal/config"
)

// ErrNotLoaded is returned by Synthesize before Load succeeded.
var ErrNotLoaded = errors.New("tts engine not loaded")

// Request contains parameters to synthesize one segment of speech.
type Request struct {
	Text     string
	Voice    string
	Language string
}

// Audio is signed 16-bit little-endian mono PCM.
type Audio struct {
	PCM  []byte
	Rate int
}

// Engine is the contract for producing audio. Implementations are not
// reentrant; callers serialize access through a Worker.
type Engine interface {
	Load(ctx context.Context) error
	Voices() []string
	SampleRate() int
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// Options tune inference. Thread counts are handed to the engine explicitly
// rather than through the process environment.
type Options struct {
	Steps           int
	Speed           float64
	IntraOpThreads  int
	InterOpThreads  int
	DefaultLanguage string
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Steps:           cfg.Engine.Steps,
		Speed:           cfg.Engine.Speed,
		IntraOpThreads:  cfg.Engine.Threads,
		InterOpThreads:  max(1, cfg.Engine.Threads/2),
		DefaultLanguage: cfg.Synthesis.DefaultLanguage,
	}
}

func (o Options) language(code string) string {
	fallback := config.NormalizeLanguage(o.DefaultLanguage, "en")
	if code == "" {
		return fallback
	}
	return config.NormalizeLanguage(code, fallback)
}
