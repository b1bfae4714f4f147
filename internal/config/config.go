// Package config loads service configuration from an optional YAML file with
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the daemon and CLI tools need.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	DatabasePath string `yaml:"database_path"`
	ArchiveDir   string `yaml:"archive_dir"`
	WatchDir     string `yaml:"watch_dir"` // optional; empty disables the watcher

	OllamaURL  string `yaml:"ollama_url"`
	EmbedModel string `yaml:"embed_model"`

	ArchiveDays int  `yaml:"archive_days"`
	Debug       bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:         "127.0.0.1",
		Port:         "8240",
		DatabasePath: "./data/memories.db",
		ArchiveDir:   "./data/archive",
		OllamaURL:    "http://localhost:11434",
		EmbedModel:   "nomic-embed-text",
		ArchiveDays:  90,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or the file doesn't exist), then
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Host = envOr("MEMKEEP_HOST", cfg.Host)
	cfg.Port = envOr("MEMKEEP_PORT", cfg.Port)
	cfg.DatabasePath = envOr("MEMKEEP_DB_PATH", cfg.DatabasePath)
	cfg.ArchiveDir = envOr("MEMKEEP_ARCHIVE_DIR", cfg.ArchiveDir)
	cfg.WatchDir = envOr("MEMKEEP_WATCH_DIR", cfg.WatchDir)
	cfg.OllamaURL = envOr("OLLAMA_URL", cfg.OllamaURL)
	cfg.EmbedModel = envOr("OLLAMA_EMBED_MODEL", cfg.EmbedModel)
	if v := os.Getenv("MEMKEEP_ARCHIVE_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("MEMKEEP_ARCHIVE_DAYS: %w", err)
		}
		cfg.ArchiveDays = n
	}
	if v := os.Getenv("MEMKEEP_DEBUG"); v == "1" || v == "true" {
		cfg.Debug = true
	}

	return cfg, nil
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

// BaseURL returns the HTTP base URL clients should use.
func (c Config) BaseURL() string {
	return "http://" + c.Addr()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
