package tts

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-tts/internal/config"
)

// NewEngine builds the engine selected by engine.mode. The engine still has
// to be loaded.
func NewEngine(cfg config.Config, logger *slog.Logger) (Engine, error) {
	switch cfg.Engine.Mode {
	case "exec":
		return NewExecEngine(cfg, logger)
	case "mock":
		return NewMockEngine(cfg.Engine.SampleRate), nil
	default:
		return nil, fmt.Errorf("unsupported engine mode %q", cfg.Engine.Mode)
	}
}
