package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/WangQiHao-Charlie/thc6gw/pkg/driver"
)

const (
	EnvListen     = "THC6GW_LISTEN"
	EnvPath       = "THC6GW_PATH"
	EnvGRPCListen = "THC6GW_GRPC_LISTEN"
	EnvLogLevel   = "THC6GW_LOG_LEVEL"
	EnvTimeout    = "THC6GW_TIMEOUT"
)

// Config is the runtime configuration of the gateway daemon.
type Config struct {
	// MCP streamable-HTTP listener.
	Listen string
	Path   string

	// Optional gRPC listener; empty disables it.
	GRPCListen string

	Metrics  bool
	LogLevel string
	LogJSON  bool

	Exec ExecConfig
}

// ExecConfig mirrors the optional ExecDriver limits. Every non-zero value
// departs from the unrestricted default behavior.
type ExecConfig struct {
	Timeout             time.Duration
	TerminationGrace    time.Duration
	MaxConcurrency      int
	AllowedBinaries     []string
	AllowedBinariesFile string
}

func Default() Config {
	return Config{
		Listen:   "0.0.0.0:3000",
		Path:     "/mcp",
		Metrics:  true,
		LogLevel: "info",
		Exec: ExecConfig{
			TerminationGrace: 5 * time.Second,
		},
	}
}

// DriverConfig converts the exec section into driver settings.
func (c Config) DriverConfig() driver.Config {
	return driver.Config{
		AllowedBinaries:     append([]string(nil), c.Exec.AllowedBinaries...),
		AllowedBinariesFile: c.Exec.AllowedBinariesFile,
		MaxConcurrency:      c.Exec.MaxConcurrency,
		DefaultTimeout:      c.Exec.Timeout,
		TerminationGrace:    c.Exec.TerminationGrace,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return fmt.Errorf("listen address is required")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("path %q must start with /", c.Path)
	}
	if c.Exec.Timeout < 0 {
		return fmt.Errorf("exec timeout must not be negative")
	}
	if c.Exec.TerminationGrace < 0 {
		return fmt.Errorf("termination grace must not be negative")
	}
	if c.Exec.MaxConcurrency < 0 {
		return fmt.Errorf("max concurrency must not be negative")
	}
	return nil
}

type fileConfig struct {
	Listen     string `toml:"listen"`
	Path       string `toml:"path"`
	GRPCListen string `toml:"grpc_listen"`
	Metrics    bool   `toml:"metrics"`
	Log        struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
	Exec struct {
		Timeout             string   `toml:"timeout"`
		TerminationGrace    string   `toml:"termination_grace"`
		MaxConcurrency      int      `toml:"max_concurrency"`
		AllowedBinaries     []string `toml:"allowed_binaries"`
		AllowedBinariesFile string   `toml:"allowed_binaries_file"`
	} `toml:"exec"`
}

// Load returns defaults overlaid with the TOML file at path (when non-empty)
// and then with environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("grpc_listen") {
		cfg.GRPCListen = strings.TrimSpace(raw.GRPCListen)
	}
	if meta.IsDefined("metrics") {
		cfg.Metrics = raw.Metrics
	}
	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "json") {
		cfg.LogJSON = raw.Log.JSON
	}
	if meta.IsDefined("exec", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Exec.Timeout))
		if err != nil {
			return fmt.Errorf("parse exec.timeout: %w", err)
		}
		cfg.Exec.Timeout = d
	}
	if meta.IsDefined("exec", "termination_grace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Exec.TerminationGrace))
		if err != nil {
			return fmt.Errorf("parse exec.termination_grace: %w", err)
		}
		cfg.Exec.TerminationGrace = d
	}
	if meta.IsDefined("exec", "max_concurrency") {
		cfg.Exec.MaxConcurrency = raw.Exec.MaxConcurrency
	}
	if meta.IsDefined("exec", "allowed_binaries") {
		cfg.Exec.AllowedBinaries = normalizeList(raw.Exec.AllowedBinaries)
	}
	if meta.IsDefined("exec", "allowed_binaries_file") {
		cfg.Exec.AllowedBinariesFile = strings.TrimSpace(raw.Exec.AllowedBinariesFile)
	}
	return nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvListen)); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(getenv(EnvPath)); v != "" {
		cfg.Path = v
	}
	if v := strings.TrimSpace(getenv(EnvGRPCListen)); v != "" {
		cfg.GRPCListen = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", EnvTimeout, err)
		}
		cfg.Exec.Timeout = d
	}
	return nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if v := strings.TrimSpace(s); v != "" {
			out = append(out, v)
		}
	}
	return out
}
