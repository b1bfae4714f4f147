package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8240" || cfg.EmbedModel != "nomic-embed-text" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Addr() != "127.0.0.1:8240" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memkeep.yaml")
	content := "port: \"9000\"\ndatabase_path: /tmp/test.db\narchive_days: 30\ndebug: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" || cfg.DatabasePath != "/tmp/test.db" || cfg.ArchiveDays != 30 || !cfg.Debug {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	// Unset keys keep their defaults.
	if cfg.Host != "127.0.0.1" {
		t.Errorf("Host = %q", cfg.Host)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memkeep.yaml")
	if err := os.WriteFile(path, []byte("port: \"9000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MEMKEEP_PORT", "9999")
	t.Setenv("MEMKEEP_ARCHIVE_DAYS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("env should win over file: port = %q", cfg.Port)
	}
	if cfg.ArchiveDays != 7 {
		t.Errorf("ArchiveDays = %d", cfg.ArchiveDays)
	}
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Errorf("missing config file should not error: %v", err)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml should error")
	}
}

func TestLoad_BadArchiveDays(t *testing.T) {
	t.Setenv("MEMKEEP_ARCHIVE_DAYS", "soon")
	if _, err := Load(""); err == nil {
		t.Error("non-numeric MEMKEEP_ARCHIVE_DAYS should error")
	}
}
