package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileYieldsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.toml")
	body := `
network = "devnet"
k = 5
shutdown_grace_period = "10s"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "devnet" {
		t.Fatalf("network = %q, want devnet", cfg.Network)
	}
	if cfg.K != 5 {
		t.Fatalf("k = %d, want 5", cfg.K)
	}
	if cfg.ShutdownGracePeriod != 10*time.Second {
		t.Fatalf("shutdown_grace_period = %v, want 10s", cfg.ShutdownGracePeriod)
	}
	// Fields absent from the file keep their default values.
	if cfg.StorePath != Default().StorePath {
		t.Fatalf("store_path = %q, want default %q", cfg.StorePath, Default().StorePath)
	}
}

func TestLoadEmptyPathYieldsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected defaults for empty path, got %+v", cfg)
	}
}
