// Package config loads onramp configuration from defaults, an optional
// YAML file and ONRAMP_-prefixed environment variables, in that order.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Store     StoreConfig     `koanf:"store"`
	Rosters   RostersConfig   `koanf:"rosters"`
	Protocols ProtocolsConfig `koanf:"protocols"`
	Worker    WorkerConfig    `koanf:"worker"`
	Chat      ChatConfig      `koanf:"chat"`
	HTTP      HTTPConfig      `koanf:"http"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type StoreConfig struct {
	Backend string `koanf:"backend"` // memory, sqlite
	Path    string `koanf:"path"`    // sqlite database file
}

type RostersConfig struct {
	Path string `koanf:"path"`
}

type ProtocolsConfig struct {
	SeedPath string `koanf:"seed_path"`
}

type WorkerConfig struct {
	MaxAttempts  int           `koanf:"max_attempts"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	Timeout      time.Duration `koanf:"timeout"`
}

type ChatConfig struct {
	ServiceAccount string `koanf:"service_account"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

var k = koanf.New(".")

// Load reads configuration from defaults, then the optional YAML file at
// path, then ONRAMP_-prefixed environment variables.
func Load(path string) (*Config, error) {
	return LoadWithProfile(path, "")
}

// LoadWithProfile loads the base file and, when a profile is given,
// overlays config.<profile>.yaml from the same directory if it exists.
func LoadWithProfile(path, profile string) (*Config, error) {
	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("telemetry.exporter", "stdout")
	k.Set("store.backend", "memory")
	k.Set("store.path", "onramp.db")
	k.Set("worker.max_attempts", 3)
	k.Set("worker.initial_delay", "100ms")
	k.Set("worker.max_delay", "10s")
	k.Set("worker.timeout", "30s")
	k.Set("chat.service_account", "onboarding-bot@enterprise.iam")
	k.Set("http.addr", ":8080")

	// 1. Load from file, then the profile overlay
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}
	if overlay := profileConfigPath(path, profile); overlay != "" {
		if err := k.Load(file.Provider(overlay), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (ONRAMP_STORE_BACKEND -> store.backend)
	if err := k.Load(env.Provider("ONRAMP_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "ONRAMP_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// profileConfigPath returns the config.<profile>.yaml sibling of base,
// or "" when there is no base, no profile, or the overlay is absent.
func profileConfigPath(base, profile string) string {
	if base == "" || profile == "" {
		return ""
	}
	dir := filepath.Dir(base)
	name := filepath.Base(base)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	overlay := filepath.Join(dir, stem+"."+profile+ext)
	if _, err := os.Stat(overlay); err != nil {
		return ""
	}
	return overlay
}
