package main

import (
	"testing"

	"github.com/loqalabs/loqa-tts/internal/config"
)

func TestApplyFlagsOverridesOnlyChanged(t *testing.T) {
	cmd, f := newRootCmd()
	if err := cmd.ParseFlags([]string{"--engine", "mock", "--language", "KO-kr", "--no-streaming", "--debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := applyFlags(cmd, config.Default(), *f)
	if err != nil {
		t.Fatalf("apply flags: %v", err)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected mock engine, got %q", cfg.Engine.Mode)
	}
	if cfg.Synthesis.DefaultLanguage != "ko" {
		t.Fatalf("expected normalized language ko, got %q", cfg.Synthesis.DefaultLanguage)
	}
	if cfg.Synthesis.Streaming {
		t.Fatal("expected streaming disabled")
	}
	if cfg.Telemetry.LogLevel != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Telemetry.LogLevel)
	}
	if cfg.Engine.Steps != 5 {
		t.Fatalf("unchanged steps flag must keep the configured value, got %d", cfg.Engine.Steps)
	}
}

func TestApplyFlagsRejectsInvalid(t *testing.T) {
	cmd, f := newRootCmd()
	if err := cmd.ParseFlags([]string{"--engine", "mock", "--uri", "unix:///tmp/tts.sock"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if _, err := applyFlags(cmd, config.Default(), *f); err == nil {
		t.Fatal("expected an error for a non-tcp uri")
	}
}
