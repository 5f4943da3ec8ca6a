package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestManagerDefaults verifies a missing config file is not an error and
// yields the built-in defaults.
func TestManagerDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := m.Get()
	if cfg.Camera.Backend != "sim" {
		t.Errorf("Expected sim backend, got %q", cfg.Camera.Backend)
	}
	if cfg.Pipeline.TargetDisplayRate != 30 {
		t.Errorf("Expected target display rate 30, got %v", cfg.Pipeline.TargetDisplayRate)
	}
	if cfg.Pipeline.FPSWindow != 10 {
		t.Errorf("Expected fps window 10, got %d", cfg.Pipeline.FPSWindow)
	}
	if cfg.ServerPort != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.ServerPort)
	}
}

// TestManagerSaveLoadRoundtrip verifies overrides survive a save and reload.
func TestManagerSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	m.SetPort(9090)
	m.SetLogLevel("debug")
	if err := m.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	m2, err := NewManager(path)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	cfg := m2.Get()
	if cfg.ServerPort != 9090 {
		t.Errorf("Expected port 9090 after reload, got %d", cfg.ServerPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected log level debug after reload, got %q", cfg.LogLevel)
	}
	// Untouched fields keep their defaults.
	if cfg.Camera.Width != 640 {
		t.Errorf("Expected camera width 640, got %d", cfg.Camera.Width)
	}
}

// TestManagerPartialFile verifies fields missing from the file fall back to
// defaults.
func TestManagerPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server_port: 7000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	cfg := m.Get()
	if cfg.ServerPort != 7000 {
		t.Errorf("Expected port 7000, got %d", cfg.ServerPort)
	}
	if cfg.Pipeline.QueueCapacity != 64 {
		t.Errorf("Expected default queue capacity 64, got %d", cfg.Pipeline.QueueCapacity)
	}
}

// TestManagerRejectsMalformedFile verifies broken YAML surfaces as an error.
func TestManagerRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewManager(path); err == nil {
		t.Error("Expected error for malformed config file")
	}
}
