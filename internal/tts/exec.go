package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/mattn/go-shellwords"
)

type execEngine struct {
	cmd        []string
	dataDir    string
	output     string
	opts       Options
	sampleRate int
	logger     *slog.Logger

	mu     sync.Mutex
	assets Assets
	voices []string
	loaded bool
}

type execRequest struct {
	Text           string  `json:"text"`
	Voice          string  `json:"voice"`
	StylePath      string  `json:"style_path,omitempty"`
	ModelDir       string  `json:"model_dir"`
	Language       string  `json:"language"`
	Steps          int     `json:"steps"`
	Speed          float64 `json:"speed"`
	SampleRate     int     `json:"sample_rate"`
	Output         string  `json:"output"`
	IntraOpThreads int     `json:"intra_op_threads"`
	InterOpThreads int     `json:"inter_op_threads"`
}

// NewExecEngine runs cfg.Engine.Command once per segment. The command reads a
// JSON request on stdin and writes a WAV document, or raw float32 samples
// when engine.output is f32, to stdout.
func NewExecEngine(cfg config.Config, logger *slog.Logger) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Engine.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execEngine{
		cmd:        args,
		dataDir:    cfg.Engine.DataDir,
		output:     cfg.Engine.Output,
		opts:       OptionsFromConfig(cfg),
		sampleRate: cfg.Engine.SampleRate,
		logger:     logger.With(slog.String("component", "tts-exec")),
	}, nil
}

func (e *execEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	assets, err := LocateAssets(e.dataDir)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(e.cmd[0]); err != nil {
		return fmt.Errorf("tts command %q: %w", e.cmd[0], err)
	}
	voices, found, err := assets.ScanVoices()
	if err != nil {
		return err
	}
	if !found {
		e.logger.Warn("voice styles folder not found", slog.String("dir", assets.StyleDir))
		assets.StyleDir = ""
	}
	e.assets = assets
	e.voices = voices
	e.loaded = true
	e.logger.Info("engine ready",
		slog.String("model_dir", assets.ModelDir),
		slog.Int("voices", len(voices)),
		slog.Int("sample_rate", e.sampleRate))
	return nil
}

func (e *execEngine) Voices() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.voices...)
}

func (e *execEngine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}

func (e *execEngine) Synthesize(ctx context.Context, req Request) (Audio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return Audio{}, ErrNotLoaded
	}

	payload := execRequest{
		Text:           req.Text,
		Voice:          req.Voice,
		StylePath:      e.assets.StylePath(req.Voice),
		ModelDir:       e.assets.ModelDir,
		Language:       e.opts.language(req.Language),
		Steps:          e.opts.Steps,
		Speed:          e.opts.Speed,
		SampleRate:     e.sampleRate,
		Output:         e.output,
		IntraOpThreads: e.opts.IntraOpThreads,
		InterOpThreads: e.opts.InterOpThreads,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Audio{}, err
	}

	e.logger.Debug("synthesizing",
		slog.String("voice", payload.Voice),
		slog.String("language", payload.Language),
		slog.Int("steps", payload.Steps),
		slog.Float64("speed", payload.Speed))

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdin = bytes.NewReader(data)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Audio{}, fmt.Errorf("tts command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	switch e.output {
	case "f32":
		samples, err := decodeF32(stdout.Bytes())
		if err != nil {
			return Audio{}, err
		}
		return Audio{PCM: FloatToPCM16(samples), Rate: e.sampleRate}, nil
	default:
		pcm, rate, err := decodeWAV(stdout.Bytes())
		if err != nil {
			return Audio{}, err
		}
		if rate > 0 && rate != e.sampleRate {
			e.logger.Debug("engine sample rate updated", slog.Int("sample_rate", rate))
			e.sampleRate = rate
		}
		return Audio{PCM: pcm, Rate: e.sampleRate}, nil
	}
}
