package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "memory" {
		t.Errorf("expected default backend memory, got %s", cfg.Store.Backend)
	}
	if cfg.Worker.MaxAttempts != 3 {
		t.Errorf("expected 3 worker attempts, got %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Worker.Timeout != 30*time.Second {
		t.Errorf("expected 30s worker timeout, got %s", cfg.Worker.Timeout)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.HTTP.Addr)
	}
}

func TestLoadEnv(t *testing.T) {
	os.Setenv("ONRAMP_STORE_BACKEND", "sqlite")
	defer os.Unsetenv("ONRAMP_STORE_BACKEND")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Backend != "sqlite" {
		t.Errorf("expected backend sqlite from env, got %s", cfg.Store.Backend)
	}
}

func TestLoadWithProfile(t *testing.T) {
	tmpDir := t.TempDir()

	baseConfig := `
store:
  backend: "sqlite"
  path: "base.db"
log:
  level: "info"
`
	basePath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(basePath, []byte(baseConfig), 0644); err != nil {
		t.Fatalf("failed to write base config: %v", err)
	}

	devConfig := `
store:
  backend: "memory"
log:
  level: "debug"
`
	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte(devConfig), 0644); err != nil {
		t.Fatalf("failed to write dev config: %v", err)
	}

	tests := []struct {
		name        string
		profile     string
		wantBackend string
		wantLevel   string
		wantPath    string // inherited from base when the overlay is silent
	}{
		{
			name:        "no profile - base only",
			profile:     "",
			wantBackend: "sqlite",
			wantLevel:   "info",
			wantPath:    "base.db",
		},
		{
			name:        "dev profile",
			profile:     "dev",
			wantBackend: "memory",
			wantLevel:   "debug",
			wantPath:    "base.db",
		},
		{
			name:        "nonexistent profile - falls back to base",
			profile:     "staging",
			wantBackend: "sqlite",
			wantLevel:   "info",
			wantPath:    "base.db",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadWithProfile(basePath, tc.profile)
			if err != nil {
				t.Fatalf("LoadWithProfile failed: %v", err)
			}

			if cfg.Store.Backend != tc.wantBackend {
				t.Errorf("backend: got %s, want %s", cfg.Store.Backend, tc.wantBackend)
			}
			if cfg.Log.Level != tc.wantLevel {
				t.Errorf("log level: got %s, want %s", cfg.Log.Level, tc.wantLevel)
			}
			if cfg.Store.Path != tc.wantPath {
				t.Errorf("store path: got %s, want %s", cfg.Store.Path, tc.wantPath)
			}
		})
	}
}

func TestProfileConfigPath(t *testing.T) {
	tmpDir := t.TempDir()

	devPath := filepath.Join(tmpDir, "config.dev.yaml")
	if err := os.WriteFile(devPath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create dev config: %v", err)
	}

	basePath := filepath.Join(tmpDir, "config.yaml")

	tests := []struct {
		name     string
		base     string
		profile  string
		wantPath string
	}{
		{name: "existing profile", base: basePath, profile: "dev", wantPath: devPath},
		{name: "nonexistent profile", base: basePath, profile: "prod", wantPath: ""},
		{name: "empty profile", base: basePath, profile: "", wantPath: ""},
		{name: "empty base", base: "", profile: "dev", wantPath: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := profileConfigPath(tc.base, tc.profile)
			if got != tc.wantPath {
				t.Errorf("profileConfigPath(%q, %q) = %q, want %q", tc.base, tc.profile, got, tc.wantPath)
			}
		})
	}
}
