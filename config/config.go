package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/hupe1980/agentpack/core"
	"github.com/hupe1980/agentpack/logging"
)

// FileName is the name of the config file inside the config directory.
const FileName = "config.toml"

// Logging backends.
const (
	BackendSlog    = "slog"
	BackendZap     = "zap"
	BackendConsole = "console"
)

// Config is the workspace configuration.
type Config struct {
	// DefaultOptions is the options layer between the built-in defaults and
	// the agent file.
	DefaultOptions core.AgentOptions `toml:"default_options"`
	Logging        LoggingConfig     `toml:"logging"`
	Events         EventsConfig      `toml:"events"`
	Providers      ProvidersConfig   `toml:"providers"`
}

// LoggingConfig selects the logger backend.
type LoggingConfig struct {
	Level   string `toml:"level"`
	Format  string `toml:"format"`  // text or json
	Backend string `toml:"backend"` // slog, zap or console
}

// EventsConfig configures progress event delivery.
type EventsConfig struct {
	BufferSize  int    `toml:"buffer_size"`
	NATSURL     string `toml:"nats_url"`
	NATSSubject string `toml:"nats_subject"`
}

// ProvidersConfig configures the model providers. API keys are read from the
// environment (OPENAI_API_KEY, ANTHROPIC_API_KEY) by the provider SDKs.
type ProvidersConfig struct {
	OpenAIBaseURL string `toml:"openai_base_url"`
	MaxTokens     int64  `toml:"max_tokens"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "text",
			Backend: BackendConsole,
		},
		Events: EventsConfig{
			NATSSubject: "agentpack.events",
		},
	}
}

// Dir returns the config directory of a workspace.
func Dir(workspaceDir string) string {
	return filepath.Join(workspaceDir, core.ConfigDirName)
}

// Path returns the config file path of a workspace.
func Path(workspaceDir string) string {
	return filepath.Join(Dir(workspaceDir), FileName)
}

// Load loads defaults, the workspace config file if present, and environment
// overrides.
func Load(workspaceDir string) (*Config, error) {
	cfg := Default()

	path := Path(workspaceDir)
	if _, err := os.Stat(path); err == nil {
		if err := loadConfigFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config file %s: %w", path, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single config file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := loadConfigFile(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config file %s: %w", path, err)
	}
	return cfg, nil
}

func loadConfigFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown key %q", undecoded[0].String())
	}
	return nil
}

// loadFromEnv overrides config from environment variables.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("AGENTPACK_MODEL"); v != "" {
		cfg.DefaultOptions.Model = core.Ptr(v)
	}
	if v := os.Getenv("AGENTPACK_INPUT_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("AGENTPACK_INPUT_CONCURRENCY: %w", err)
		}
		cfg.DefaultOptions.InputConcurrency = core.Ptr(n)
	}
	if v := os.Getenv("AGENTPACK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AGENTPACK_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AGENTPACK_LOG_BACKEND"); v != "" {
		cfg.Logging.Backend = v
	}
	if v := os.Getenv("AGENTPACK_NATS_URL"); v != "" {
		cfg.Events.NATSURL = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" && cfg.Providers.OpenAIBaseURL == "" {
		cfg.Providers.OpenAIBaseURL = v
	}
	return nil
}

// NewLogger builds the configured logger writing to w.
func (c LoggingConfig) NewLogger(w io.Writer) (logging.Logger, error) {
	level := logging.ParseLevel(c.Level)
	switch c.Backend {
	case "", BackendConsole:
		return logging.NewConsoleLogger(w, level, "agentpack"), nil
	case BackendSlog:
		return logging.NewLogger(&logging.LoggerConfig{
			Level:     level,
			Format:    c.Format,
			Output:    w,
			Component: "agentpack",
		}), nil
	case BackendZap:
		return logging.NewZapLogger(level, c.Format)
	default:
		return nil, fmt.Errorf("unknown logging backend %q", c.Backend)
	}
}

// FindWorkspace walks up from start to the first directory containing a
// config directory. start itself is returned when none is found.
func FindWorkspace(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for dir := abs; ; {
		if info, err := os.Stat(Dir(dir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}
