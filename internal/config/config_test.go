package config

import (
	"os"
	"path/filepath"
	"testing"
)

func mockEngineEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOQA_TTS_ENGINE_MODE", "mock")
}

func TestLoadDefaultsRequireEngineCommand(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error: default exec engine has no command")
	}
}

func TestLoadMockDefaults(t *testing.T) {
	mockEngineEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.URI != "tcp://0.0.0.0:10209" {
		t.Fatalf("expected default uri, got %q", cfg.Server.URI)
	}
	if cfg.Synthesis.MinChars != 20 || cfg.Synthesis.ChunkBytes != 2048 {
		t.Fatalf("unexpected synthesis defaults: %+v", cfg.Synthesis)
	}
	if !cfg.Synthesis.Streaming {
		t.Fatal("streaming should default to enabled")
	}
	if cfg.Synthesis.DefaultLanguage != "en" {
		t.Fatalf("expected default language en, got %q", cfg.Synthesis.DefaultLanguage)
	}
	if cfg.Engine.TimeoutMS != 0 {
		t.Fatalf("synthesis must not time out by default, got %dms", cfg.Engine.TimeoutMS)
	}
}

func TestEnvOverrides(t *testing.T) {
	mockEngineEnv(t)
	t.Setenv("LOQA_TTS_SERVER_URI", "tcp://127.0.0.1:10300")
	t.Setenv("LOQA_TTS_ENGINE_STEPS", "8")
	t.Setenv("LOQA_TTS_ENGINE_SPEED", "1.25")
	t.Setenv("LOQA_TTS_SYNTHESIS_STREAMING", "false")
	t.Setenv("LOQA_TTS_SYNTHESIS_DEFAULT_LANGUAGE", "KO-kr")
	t.Setenv("LOQA_TTS_BUS_SERVERS", "nats://one:4222,nats://two:4222")
	t.Setenv("LOQA_TTS_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_TTS_EVENT_STORE_PATH", "./tmp.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.URI != "tcp://127.0.0.1:10300" {
		t.Fatalf("expected uri override, got %q", cfg.Server.URI)
	}
	if cfg.Engine.Steps != 8 || cfg.Engine.Speed != 1.25 {
		t.Fatalf("expected engine overrides, got %+v", cfg.Engine)
	}
	if cfg.Synthesis.Streaming {
		t.Fatal("expected streaming disabled")
	}
	if cfg.Synthesis.DefaultLanguage != "ko" {
		t.Fatalf("expected normalized language ko, got %q", cfg.Synthesis.DefaultLanguage)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.EventStore.RetentionMode != "persistent" || cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-tts.yaml")
	data := []byte(`
server:
  uri: tcp://localhost:11000
engine:
  mode: exec
  command: "python3 infer.py --quiet"
  data_dir: /srv/supertonic
  threads: 2
synthesis:
  default_voice: F2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Command != "python3 infer.py --quiet" || cfg.Engine.Threads != 2 {
		t.Fatalf("unexpected engine config: %+v", cfg.Engine)
	}
	if cfg.Synthesis.DefaultVoice != "F2" {
		t.Fatalf("expected default voice F2, got %q", cfg.Synthesis.DefaultVoice)
	}
	if cfg.Synthesis.ChunkBytes != 2048 {
		t.Fatal("defaults should survive a partial file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"udp uri", func(c *Config) { c.Server.URI = "udp://0.0.0.0:10209" }},
		{"missing port", func(c *Config) { c.Server.URI = "tcp://0.0.0.0" }},
		{"unknown engine", func(c *Config) { c.Engine.Mode = "onnx" }},
		{"odd chunk size", func(c *Config) { c.Synthesis.ChunkBytes = 2047 }},
		{"zero steps", func(c *Config) { c.Engine.Steps = 0 }},
		{"bad log format", func(c *Config) { c.Telemetry.LogFormat = "xml" }},
		{"bad retention", func(c *Config) { c.EventStore.RetentionMode = "forever" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Engine.Mode = "mock"
			tt.mutate(&cfg)
			if _, err := Normalize(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"EN-us", "en"},
		{"fr", "fr"},
		{"Pt_BR", "pt"},
		{"xx", "ko"},
		{"", "ko"},
	}
	for _, tt := range tests {
		if got := NormalizeLanguage(tt.in, "ko"); got != tt.want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestListenAddress(t *testing.T) {
	addr, err := ListenAddress("tcp://127.0.0.1:10209")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != "127.0.0.1:10209" {
		t.Fatalf("unexpected address %q", addr)
	}
}

func TestReadSkipsValidation(t *testing.T) {
	cfg, err := Read("")
	if err != nil {
		t.Fatalf("read should not validate: %v", err)
	}
	cfg.Engine.Mode = "mock"
	if _, err := Normalize(cfg); err != nil {
		t.Fatalf("normalize after override: %v", err)
	}
}
