package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. LOQA_TTS_SERVER_URI.
const EnvPrefix = "LOQA_TTS_"

var supportedLanguages = []string{"en", "ko", "es", "pt", "fr"}

type ServerConfig struct {
	URI           string `yaml:"uri" env:"URI"`
	ReadTimeoutMS int    `yaml:"read_timeout_ms" env:"READ_TIMEOUT_MS"`
}

type EngineConfig struct {
	Mode       string  `yaml:"mode" env:"MODE"` // exec, mock
	Command    string  `yaml:"command" env:"COMMAND"`
	DataDir    string  `yaml:"data_dir" env:"DATA_DIR"`
	Steps      int     `yaml:"steps" env:"STEPS"`
	Speed      float64 `yaml:"speed" env:"SPEED"`
	Threads    int     `yaml:"threads" env:"THREADS"`
	Output     string  `yaml:"output" env:"OUTPUT"` // wav, f32
	SampleRate int     `yaml:"sample_rate" env:"SAMPLE_RATE"`
	TimeoutMS  int     `yaml:"timeout_ms" env:"TIMEOUT_MS"` // 0 lets every synthesis finish
}

type SynthesisConfig struct {
	DefaultLanguage string `yaml:"default_language" env:"DEFAULT_LANGUAGE"`
	DefaultVoice    string `yaml:"default_voice" env:"DEFAULT_VOICE"`
	Streaming       bool   `yaml:"streaming" env:"STREAMING"`
	MinChars        int    `yaml:"min_chars" env:"MIN_CHARS"`
	ChunkBytes      int    `yaml:"chunk_bytes" env:"CHUNK_BYTES"`
}

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"LOG_FORMAT"`
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	OTLPInsecure bool   `yaml:"otlp_insecure" env:"OTLP_INSECURE"`
	StdoutTraces bool   `yaml:"stdout_traces" env:"STDOUT_TRACES"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind" env:"BIND"`
	Port int    `yaml:"port" env:"PORT"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled" env:"ENABLED"`
	Embedded       bool     `yaml:"embedded" env:"EMBEDDED"`
	Port           int      `yaml:"port" env:"PORT"`
	Servers        []string `yaml:"servers" env:"SERVERS"`
	Username       string   `yaml:"username" env:"USERNAME"`
	Password       string   `yaml:"password" env:"PASSWORD"`
	Token          string   `yaml:"token" env:"TOKEN"`
	TLSInsecure    bool     `yaml:"tls_insecure" env:"TLS_INSECURE"`
	ConnectTimeout int      `yaml:"connect_timeout_ms" env:"CONNECT_TIMEOUT_MS"`
	SubjectPrefix  string   `yaml:"subject_prefix" env:"SUBJECT_PREFIX"`
}

type NodeConfig struct {
	ID                string `yaml:"id" env:"ID"`
	HeartbeatInterval int    `yaml:"heartbeat_interval_ms" env:"HEARTBEAT_INTERVAL_MS"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path" env:"PATH"`
	RetentionMode string `yaml:"retention_mode" env:"RETENTION_MODE"`
	RetentionDays int    `yaml:"retention_days" env:"RETENTION_DAYS"`
	MaxSessions   int    `yaml:"max_sessions" env:"MAX_SESSIONS"`
	VacuumOnStart bool   `yaml:"vacuum_on_start" env:"VACUUM_ON_START"`
}

type Config struct {
	ServiceName string           `yaml:"service_name" env:"SERVICE_NAME"`
	Server      ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Engine      EngineConfig     `yaml:"engine" envPrefix:"ENGINE_"`
	Synthesis   SynthesisConfig  `yaml:"synthesis" envPrefix:"SYNTHESIS_"`
	Telemetry   TelemetryConfig  `yaml:"telemetry" envPrefix:"TELEMETRY_"`
	HTTP        HTTPConfig       `yaml:"http" envPrefix:"HTTP_"`
	Bus         BusConfig        `yaml:"bus" envPrefix:"BUS_"`
	Node        NodeConfig       `yaml:"node" envPrefix:"NODE_"`
	EventStore  EventStoreConfig `yaml:"event_store" envPrefix:"EVENT_STORE_"`
}

func Default() Config {
	return Config{
		ServiceName: "loqa-tts",
		Server: ServerConfig{
			URI: "tcp://0.0.0.0:10209",
		},
		Engine: EngineConfig{
			Mode:       "exec",
			Steps:      5,
			Speed:      1.0,
			Threads:    4,
			Output:     "wav",
			SampleRate: 44100,
			TimeoutMS:  0,
		},
		Synthesis: SynthesisConfig{
			DefaultLanguage: "en",
			Streaming:       true,
			MinChars:        20,
			ChunkBytes:      2048,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			LogFormat:    "text",
			OTLPInsecure: true,
		},
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 10210,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
			SubjectPrefix:  "tts",
		},
		Node: NodeConfig{
			ID:                "loqa-tts-1",
			HeartbeatInterval: 5000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-tts.db",
			RetentionMode: "ephemeral",
			RetentionDays: 7,
			MaxSessions:   10000,
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and
// LOQA_TTS_* environment variables, in that order, and validates it.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return cfg, err
	}
	return Normalize(cfg)
}

// Read is Load without validation, for callers that apply further overrides
// before calling Normalize.
func Read(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Normalize validates cfg and fills derived defaults. It is called by Load and
// again after command line flags have been applied.
func Normalize(cfg Config) (Config, error) {
	cfg.Engine.Mode = strings.ToLower(strings.TrimSpace(cfg.Engine.Mode))
	cfg.Engine.Output = strings.ToLower(strings.TrimSpace(cfg.Engine.Output))
	cfg.Synthesis.DefaultLanguage = NormalizeLanguage(cfg.Synthesis.DefaultLanguage, "en")
	cfg.Telemetry.LogFormat = strings.ToLower(strings.TrimSpace(cfg.Telemetry.LogFormat))
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SupportedLanguages lists the language codes the synthesis model accepts.
func SupportedLanguages() []string {
	return append([]string(nil), supportedLanguages...)
}

// NormalizeLanguage reduces code to its lower-cased two letter prefix and
// returns fallback when the result is not a supported language.
func NormalizeLanguage(code, fallback string) string {
	code = strings.TrimSpace(code)
	if len(code) > 2 {
		code = code[:2]
	}
	code = strings.ToLower(code)
	for _, lang := range supportedLanguages {
		if lang == code {
			return code
		}
	}
	return fallback
}

// ListenAddress extracts host:port from a tcp://HOST:PORT URI.
func ListenAddress(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse server uri: %w", err)
	}
	if u.Scheme != "tcp" || u.Hostname() == "" || u.Port() == "" {
		return "", fmt.Errorf("only tcp://HOST:PORT uris are supported, got %q", uri)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return "", fmt.Errorf("invalid port in server uri %q", uri)
	}
	return u.Host, nil
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if _, err := ListenAddress(cfg.Server.URI); err != nil {
		return err
	}
	if cfg.Server.ReadTimeoutMS < 0 {
		return errors.New("server.read_timeout_ms must be >= 0")
	}
	switch cfg.Engine.Mode {
	case "exec":
		if cfg.Engine.Command == "" {
			return errors.New("engine.command must be set when mode=exec")
		}
		if cfg.Engine.DataDir == "" {
			return errors.New("engine.data_dir must be set when mode=exec")
		}
	case "mock":
	default:
		return errors.New("engine.mode must be one of exec|mock")
	}
	switch cfg.Engine.Output {
	case "wav", "f32":
	default:
		return errors.New("engine.output must be one of wav|f32")
	}
	if cfg.Engine.Steps <= 0 {
		return errors.New("engine.steps must be positive")
	}
	if cfg.Engine.Speed <= 0 {
		return errors.New("engine.speed must be positive")
	}
	if cfg.Engine.Threads <= 0 {
		return errors.New("engine.threads must be positive")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.TimeoutMS < 0 {
		return errors.New("engine.timeout_ms must be >= 0")
	}
	if cfg.Synthesis.MinChars < 0 {
		return errors.New("synthesis.min_chars must be >= 0")
	}
	if cfg.Synthesis.ChunkBytes <= 0 || cfg.Synthesis.ChunkBytes%2 != 0 {
		return errors.New("synthesis.chunk_bytes must be a positive even number")
	}
	switch cfg.Telemetry.LogFormat {
	case "text", "json", "logfmt":
	default:
		return errors.New("telemetry.log_format must be one of text|json|logfmt")
	}
	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 0 and 65535")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
		if cfg.Bus.SubjectPrefix == "" {
			return errors.New("bus.subject_prefix must not be empty")
		}
		if cfg.Node.ID == "" {
			return errors.New("node.id must not be empty")
		}
		if cfg.Node.HeartbeatInterval <= 0 {
			return errors.New("node.heartbeat_interval_ms must be positive")
		}
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral":
	case "session", "persistent":
		if cfg.EventStore.Path == "" {
			return errors.New("event_store.path must not be empty")
		}
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	return nil
}
