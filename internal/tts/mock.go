package tts

import (
	"context"
	"math"
	"sync/atomic"
	"unicode/utf8"
)

// mockVoices mirrors a typical style folder.
var mockVoices = []string{"F1", "F2", "M1", "M2"}

type mockEngine struct {
	sampleRate int
	msPerChar  int
	loaded     atomic.Bool
}

// NewMockEngine produces a quiet tone whose length grows with the text, so
// clients can be exercised without model files.
func NewMockEngine(sampleRate int) Engine {
	return &mockEngine{sampleRate: sampleRate, msPerChar: 40}
}

func (m *mockEngine) Load(ctx context.Context) error {
	m.loaded.Store(true)
	return nil
}

func (m *mockEngine) Voices() []string { return append([]string(nil), mockVoices...) }

func (m *mockEngine) SampleRate() int { return m.sampleRate }

func (m *mockEngine) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if !m.loaded.Load() {
		return Audio{}, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return Audio{}, err
	}
	n := utf8.RuneCountInString(req.Text) * m.msPerChar * m.sampleRate / 1000
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.05 * float32(math.Sin(2*math.Pi*220*float64(i)/float64(m.sampleRate)))
	}
	return Audio{PCM: FloatToPCM16(samples), Rate: m.sampleRate}, nil
}
