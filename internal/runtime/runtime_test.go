package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Engine.Mode = "mock"
	cfg.Engine.SampleRate = 16000
	cfg.Server.URI = fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))
	cfg.HTTP.Bind = "127.0.0.1"
	cfg.HTTP.Port = freePort(t)
	cfg.EventStore.RetentionMode = "session"
	cfg.EventStore.Path = filepath.Join(t.TempDir(), "tts.db")
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = true
	cfg.Bus.Port = freePort(t)
	cfg.Node.HeartbeatInterval = 50
	normalized, err := config.Normalize(cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return normalized
}

func httpGet(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRuntimeServesSynthesis(t *testing.T) {
	cfg := testConfig(t)
	rt := New(cfg, "test", newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- rt.Start(ctx) }()

	select {
	case <-rt.Listening():
	case err := <-done:
		t.Fatalf("runtime exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not start")
	}

	conn, err := net.Dial("tcp", rt.ServerAddr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))

	w := protocol.NewWriter(conn)
	r := protocol.NewReader(conn)
	if err := w.WriteEvent(protocol.Event{Type: protocol.TypeSynthesize, Data: map[string]any{"text": "Hello from the runtime test."}}); err != nil {
		t.Fatal(err)
	}
	sawAudio := false
	for {
		ev, err := r.ReadEvent()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type == protocol.TypeAudioChunk {
			sawAudio = true
		}
		if ev.Type == protocol.TypeAudioStop {
			break
		}
	}
	if !sawAudio {
		t.Fatal("expected audio chunks")
	}

	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.HTTP.Port)
	if code, _ := httpGet(t, base+"/healthz"); code != http.StatusOK {
		t.Fatalf("healthz returned %d", code)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		code, _ := httpGet(t, base+"/readyz")
		if code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("readyz returned %d", code)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if code, body := httpGet(t, base+"/metrics"); code != http.StatusOK || !strings.Contains(body, "loqa_tts_segments") {
		t.Fatalf("metrics missing session counters (status %d)", code)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runtime returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRuntimeFailsWithoutModels(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.Command = "cat"
	cfg.Engine.DataDir = t.TempDir()
	cfg.HTTP.Port = 0
	cfg, err := config.Normalize(cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if err := New(cfg, "test", newLogger()).Start(context.Background()); err == nil {
		t.Fatal("expected startup failure without model assets")
	}
}
