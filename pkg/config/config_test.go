package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Model   string        `split_words:"true" required:"true"`
	Timeout time.Duration `split_words:"true" default:"30s"`
	MaxStep int           `split_words:"true" default:"12"`
}

func TestNewLoadsEnvFileWithPrefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SAMPLECFG_MODEL=llama-3.3-70b-versatile\nSAMPLECFG_MAX_STEP=4\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() {
		os.Unsetenv("SAMPLECFG_MODEL")
		os.Unsetenv("SAMPLECFG_MAX_STEP")
		SetEnvFile("")
	})

	SetEnvFile(path)
	cfg, err := New[sampleConfig]("SAMPLECFG")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if cfg.MaxStep != 4 {
		t.Fatalf("MaxStep = %d, want 4", cfg.MaxStep)
	}
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("Timeout = %v, want default 30s", cfg.Timeout)
	}
}

func TestNewEnvironmentWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("SAMPLEWIN_MODEL=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("SAMPLEWIN_MODEL", "from-env")
	t.Cleanup(func() { SetEnvFile("") })

	SetEnvFile(path)
	cfg, err := New[sampleConfig]("SAMPLEWIN")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if cfg.Model != "from-env" {
		t.Fatalf("Model = %q, want from-env", cfg.Model)
	}
}

func TestNewMissingRequired(t *testing.T) {
	t.Cleanup(func() { SetEnvFile("") })
	SetEnvFile("")

	if _, err := New[sampleConfig]("SAMPLEMISSING"); err == nil {
		t.Fatal("expected error for missing required field")
	}
}
