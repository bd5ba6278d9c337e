package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitCommand(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	target := filepath.Join(base, "config.toml")

	stdout, _, err := runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(base, "none.sock"), "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	requireContains(t, string(data), "[capture]")
	requireContains(t, string(data), "base_url")

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, filepath.Join(base, "none.sock"), "")
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("error = %v, want already-exists message", err)
	}

	stdout, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, filepath.Join(base, "none.sock"), "")
	if err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	requireContains(t, stdout, "Wrote sample configuration to "+target)
}

func TestConfigPathCommand(t *testing.T) {
	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))

	stdout, stderr, err := runCLI(t, []string{"config", "path"}, filepath.Join(base, "none.sock"), "")
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	requireContains(t, stdout, filepath.Join(".config", "murmur", "config.toml"))
	requireContains(t, stderr, "File does not exist")
}

func TestConfigShowCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	stdout, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, stdout, "[capture]")
	requireContains(t, stdout, "[render]")
	requireContains(t, stdout, "queue_poll_interval")
}
