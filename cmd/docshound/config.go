package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/docs-hound/docshound/internal/output"
	"github.com/docs-hound/docshound/pkg/crawler"
)

// fileConfig is the YAML configuration file. Flags override it.
type fileConfig struct {
	// Database path shared by the site registry and the document store
	Database string `yaml:"database"`

	// debug, info, warn or error. Empty means warn unless --verbose.
	LogLevel string `yaml:"log_level"`

	// Crawl settings for ad-hoc crawls. The request settings (timeout,
	// user agent, body size) also apply to discovery and indexing.
	Crawl *crawler.Config `yaml:"crawl"`

	Output output.Config `yaml:"output"`

	// LogFile, when its path is set, receives a JSON copy of the log.
	LogFile logFileConfig `yaml:"log_file"`

	// MetricsFile, when set, receives the run's metrics in the Prometheus
	// textfile format when the command exits.
	MetricsFile string `yaml:"metrics_file"`

	Serve serveConfig `yaml:"serve"`
}

type logFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// writer returns a rotating writer for the log file.
func (c logFileConfig) writer() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

type serveConfig struct {
	Addr string `yaml:"addr"`
}

func defaultFileConfig() *fileConfig {
	return &fileConfig{
		Database: defaultDatabasePath(),
		Crawl:    crawler.DefaultConfig(),
		Output:   output.Config{Format: output.FormatText},
		LogFile:  logFileConfig{MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Serve:    serveConfig{Addr: "127.0.0.1:8080"},
	}
}

// loadFileConfig reads path over the defaults. An empty path returns the
// defaults.
func loadFileConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Crawl == nil {
		cfg.Crawl = crawler.DefaultConfig()
	}
	if err := cfg.Crawl.Validate(); err != nil {
		return nil, fmt.Errorf("invalid crawl config: %w", err)
	}
	return cfg, nil
}

func defaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, "docshound", "docshound.db")
}
