// ABOUTME: Tests for engine startup configuration loading
// ABOUTME: Covers defaults, flag overrides, YAML file layering, and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() is invalid: %v", err)
	}
}

func TestLoadAppliesFlagOverrides(t *testing.T) {
	cfg, err := Load([]string{"-data-dir", "/tmp/mydb", "-buffer-pool-frames", "512", "-replacer-policy", "clock"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/tmp/mydb" {
		t.Errorf("DataDir = %q, want /tmp/mydb", cfg.DataDir)
	}
	if cfg.BufferPoolFrames != 512 {
		t.Errorf("BufferPoolFrames = %d, want 512", cfg.BufferPoolFrames)
	}
	if cfg.ReplacerPolicy != ReplacerClock {
		t.Errorf("ReplacerPolicy = %q, want clock", cfg.ReplacerPolicy)
	}
}

func TestLoadReadsYAMLFileAndFlagsWin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	contents := "data_dir: /var/lib/engine\nbuffer_pool_frames: 1024\nreplacer_policy: clock\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load([]string{"-config", path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != "/var/lib/engine" {
		t.Errorf("DataDir = %q, want /var/lib/engine", cfg.DataDir)
	}
	if cfg.BufferPoolFrames != 1024 {
		t.Errorf("BufferPoolFrames = %d, want 1024", cfg.BufferPoolFrames)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}

	cfg2, err := Load([]string{"-config", path, "-buffer-pool-frames", "2048"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg2.BufferPoolFrames != 2048 {
		t.Errorf("flag override lost to file value: BufferPoolFrames = %d, want 2048", cfg2.BufferPoolFrames)
	}
	if cfg2.DataDir != "/var/lib/engine" {
		t.Errorf("file value lost when only one flag overridden: DataDir = %q", cfg2.DataDir)
	}
}

func TestValidateRejectsBadReplacerPolicy(t *testing.T) {
	cfg := Default()
	cfg.ReplacerPolicy = "bogus"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted an unknown replacer policy")
	}
}

func TestValidateRejectsZeroBufferFrames(t *testing.T) {
	cfg := Default()
	cfg.BufferPoolFrames = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted zero buffer pool frames")
	}
}
