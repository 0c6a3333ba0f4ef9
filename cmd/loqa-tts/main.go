package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/logging"
	"github.com/loqalabs/loqa-tts/internal/runtime"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

type flags struct {
	configPath  string
	uri         string
	engine      string
	command     string
	dataDir     string
	language    string
	voice       string
	steps       int
	speed       float64
	threads     int
	noStreaming bool
	debug       bool
	logFormat   string
}

func main() {
	cmd, _ := newRootCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() (*cobra.Command, *flags) {
	f := &flags{}
	cmd := &cobra.Command{
		Use:           "loqa-tts",
		Short:         "Streaming text-to-speech server speaking the Wyoming protocol",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, *f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&f.uri, "uri", "", "Listen address as tcp://HOST:PORT")
	fs.StringVar(&f.engine, "engine", "", "Synthesis engine (exec or mock)")
	fs.StringVar(&f.command, "engine-command", "", "Synthesis command line for the exec engine")
	fs.StringVar(&f.dataDir, "data-dir", "", "Directory holding the onnx model and voice styles")
	fs.StringVar(&f.language, "language", "", "Default language (en, ko, es, pt, fr)")
	fs.StringVar(&f.voice, "voice", "", "Default voice name")
	fs.IntVar(&f.steps, "steps", 0, "Denoising steps per synthesis")
	fs.Float64Var(&f.speed, "speed", 0, "Speech speed multiplier")
	fs.IntVar(&f.threads, "threads", 0, "Engine inference threads")
	fs.BoolVar(&f.noStreaming, "no-streaming", false, "Disable incremental synthesis")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (text, json or logfmt)")
	return cmd, f
}

func run(cmd *cobra.Command, f flags) error {
	cfg, err := config.Read(f.configPath)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "failed to load config:", err)
		return err
	}
	cfg, err = applyFlags(cmd, cfg, f)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "invalid configuration:", err)
		return err
	}

	logger, err := logging.New(cfg.Telemetry.LogLevel, cfg.Telemetry.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "failed to build logger:", err)
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runtime.New(cfg, version, logger).Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// applyFlags overrides cfg with every flag set on the command line and
// validates the result.
func applyFlags(cmd *cobra.Command, cfg config.Config, f flags) (config.Config, error) {
	changed := cmd.Flags().Changed
	if changed("uri") {
		cfg.Server.URI = f.uri
	}
	if changed("engine") {
		cfg.Engine.Mode = f.engine
	}
	if changed("engine-command") {
		cfg.Engine.Command = f.command
	}
	if changed("data-dir") {
		cfg.Engine.DataDir = f.dataDir
	}
	if changed("language") {
		cfg.Synthesis.DefaultLanguage = f.language
	}
	if changed("voice") {
		cfg.Synthesis.DefaultVoice = f.voice
	}
	if changed("steps") {
		cfg.Engine.Steps = f.steps
	}
	if changed("speed") {
		cfg.Engine.Speed = f.speed
	}
	if changed("threads") {
		cfg.Engine.Threads = f.threads
	}
	if f.noStreaming {
		cfg.Synthesis.Streaming = false
	}
	if f.debug {
		cfg.Telemetry.LogLevel = "debug"
	}
	if changed("log-format") {
		cfg.Telemetry.LogFormat = f.logFormat
	}
	return config.Normalize(cfg)
}
