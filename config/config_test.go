package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
http:
  port: 9090
  timeout: 5s
database:
  path: /tmp/test.db
training:
  tree:
    max_depth: 8
  mlp:
    hidden: [6]
    epochs: 20
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9090 || cfg.HTTP.Timeout != 5*time.Second {
		t.Fatalf("unexpected http config: %+v", cfg.HTTP)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Fatalf("unexpected database path: %s", cfg.Database.Path)
	}
	if cfg.Training.Tree.MaxDepth != 8 || cfg.Training.Tree.MinSamples != 5 {
		t.Fatalf("unexpected tree params: %+v", cfg.Training.Tree)
	}
	if len(cfg.Training.MLP.Hidden) != 1 || cfg.Training.MLP.Hidden[0] != 6 || cfg.Training.MLP.Epochs != 20 {
		t.Fatalf("unexpected mlp params: %+v", cfg.Training.MLP)
	}
	if cfg.Models.CacheSize != 32 || cfg.Training.Forest.TreeCount != 10 {
		t.Fatalf("defaults lost: %+v %+v", cfg.Models, cfg.Training.Forest)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"port":     "http:\n  port: 70000\n",
		"fraction": "training:\n  test_fraction: 1.5\n",
		"syntax":   "http: [",
	}
	for name, body := range tests {
		path := filepath.Join(dir, name+".yaml")
		writeConfig(t, path, body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "http:\n  port: 8081\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(cfg *Config) { reloaded <- cfg })
	}()

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case cfg := <-reloaded:
			if cfg.HTTP.Port != 8082 {
				t.Fatalf("expected port 8082, got %d", cfg.HTTP.Port)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return
		case <-ticker.C:
			writeConfig(t, path, "http:\n  port: 8082\n")
		case <-deadline:
			t.Fatalf("config was not reloaded")
		}
	}
}
