// Package config loads the service configuration from YAML and watches it for changes.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"tabularml/ml"
	"tabularml/ml/mlp"
)

// Config is the server configuration read from YAML.
type Config struct {
	HTTP struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
	} `yaml:"http"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Log struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Models struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"models"`
	Training Training `yaml:"training"`
}

// Training holds the defaults applied to training requests that leave a field unset.
type Training struct {
	TestFraction float64         `yaml:"test_fraction"`
	Seed         int64           `yaml:"seed"`
	Tree         ml.TreeParams   `yaml:"tree"`
	Forest       ml.ForestParams `yaml:"forest"`
	MLP          mlp.Params      `yaml:"mlp"`
}

// DefaultTraining returns the engine defaults with a 0.2 test fraction and seed 42.
func DefaultTraining() Training {
	return Training{
		TestFraction: 0.2,
		Seed:         42,
		Tree:         ml.DefaultTreeParams(),
		Forest:       ml.DefaultForestParams(),
		MLP:          mlp.DefaultParams(),
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = 8080
	cfg.HTTP.Timeout = 30 * time.Second
	cfg.HTTP.AllowedOrigins = []string{"*"}
	cfg.Database.Path = "tabularml.db"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Models.CacheSize = 32
	cfg.Training = DefaultTraining()
	return cfg
}

// Load reads path over the defaults, so a partial file only overrides what it names.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the port, cache size and test fraction ranges.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port out of range: %d", c.HTTP.Port)
	}
	if c.Models.CacheSize <= 0 {
		return fmt.Errorf("models.cache_size must be positive, got %d", c.Models.CacheSize)
	}
	if f := c.Training.TestFraction; f < 0 || f >= 1 {
		return fmt.Errorf("training.test_fraction must be in [0,1), got %v", f)
	}
	return nil
}

// Watch reloads path whenever it is written and hands every valid result to fn. Invalid
// files are logged and skipped. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so watch its directory.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := Load(abs)
			if err != nil {
				zap.L().Warn("config reload failed", zap.String("path", abs), zap.Error(err))
				continue
			}
			zap.L().Info("config reloaded", zap.String("path", abs))
			fn(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("config watcher error", zap.Error(err))
		}
	}
}
