package tts

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeWAV(t *testing.T, path string, rate, channels int, samples []int) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer file.Close()
	enc := wav.NewEncoder(file, rate, 16, channels, 1)
	buf := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: rate}, Data: samples, SourceBitDepth: 16}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close wav: %v", err)
	}
}

func makeDataDir(t *testing.T, nested bool, voices ...string) string {
	t.Helper()
	root := t.TempDir()
	base := root
	if nested {
		base = filepath.Join(root, "assets")
	}
	if err := os.MkdirAll(filepath.Join(base, "onnx"), 0o755); err != nil {
		t.Fatal(err)
	}
	if len(voices) > 0 {
		styles := filepath.Join(base, "voice_styles")
		if err := os.MkdirAll(styles, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, v := range voices {
			if err := os.WriteFile(filepath.Join(styles, v+".json"), []byte("{}"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}
