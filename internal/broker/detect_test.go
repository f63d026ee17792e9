package broker

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFakeExe(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetect_EnvOverrideWins(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeExe(t, dir, "icecast")
	cfg := filepath.Join(dir, "icecast.xml")
	if err := os.WriteFile(cfg, []byte("<icecast></icecast>"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BROKER_EXE_PATH", exe)
	t.Setenv("BROKER_CONFIG_PATH", cfg)

	inst, err := Detect(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if inst.Source != SourceEnv {
		t.Errorf("Source = %q, want %q", inst.Source, SourceEnv)
	}
	if inst.ExePath != exe || inst.ConfigPath != cfg {
		t.Errorf("Paths = %q/%q, want %q/%q", inst.ExePath, inst.ConfigPath, exe, cfg)
	}
}

func TestDetect_CustomPathFromCache(t *testing.T) {
	t.Setenv("BROKER_EXE_PATH", "")
	t.Setenv("BROKER_CONFIG_PATH", "")
	t.Setenv("PATH", t.TempDir()) // hide any real installation

	dir := t.TempDir()
	exe := writeFakeExe(t, dir, "my-icecast")
	cfg := filepath.Join(dir, "custom.xml")

	inst, err := Detect(t.TempDir(), &DeviceConfig{
		BrokerExePath:    exe,
		BrokerConfigPath: cfg,
	})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if inst.Source != SourceCustom {
		t.Errorf("Source = %q, want %q", inst.Source, SourceCustom)
	}
	if inst.ConfigPath != cfg {
		t.Errorf("ConfigPath = %q, want %q", inst.ConfigPath, cfg)
	}
}

func TestDetect_NotFound(t *testing.T) {
	t.Setenv("BROKER_EXE_PATH", "")
	t.Setenv("BROKER_CONFIG_PATH", "")
	t.Setenv("PATH", t.TempDir())

	_, err := Detect(t.TempDir(), nil)
	if err == nil {
		t.Skip("broker binary present on this machine at a system path")
	}

	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Expected NotFoundError, got %T: %v", err, err)
	}
	if len(nf.Searched) == 0 {
		t.Error("NotFoundError should list searched locations")
	}
	if nf.Diagnosis.Category == "" {
		t.Error("NotFoundError should carry a diagnosis")
	}
}

func TestDeviceConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := DeviceConfig{
		BrokerExePath:    "/usr/bin/icecast2",
		BrokerConfigPath: "/etc/icecast2/icecast.xml",
		Port:             8200,
		Source:           "system-path",
	}
	if err := SaveDeviceConfig(dir, in); err != nil {
		t.Fatalf("SaveDeviceConfig failed: %v", err)
	}

	out, err := LoadDeviceConfig(dir)
	if err != nil {
		t.Fatalf("LoadDeviceConfig failed: %v", err)
	}
	if out == nil || *out != in {
		t.Errorf("Round trip mismatch: %+v", out)
	}
}

func TestDeviceConfig_MissingFile(t *testing.T) {
	cfg, err := LoadDeviceConfig(t.TempDir())
	if err != nil {
		t.Fatalf("Missing cache must not error: %v", err)
	}
	if cfg != nil {
		t.Error("Missing cache must return nil")
	}
}

func TestDeviceConfig_NeverHoldsPasswords(t *testing.T) {
	dir := t.TempDir()
	if err := SaveDeviceConfig(dir, DeviceConfig{BrokerExePath: "/usr/bin/icecast2", Port: 8000}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, DeviceConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(strings.ToLower(string(data)), "password") {
		t.Errorf("Cache file must never contain password fields: %s", data)
	}
}
