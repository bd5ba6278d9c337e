package main

import (
	"path/filepath"
	"strings"
	"testing"

	"murmur/internal/queue"
)

func TestStartCommandAlreadyRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	stdout, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, stdout, "Daemon already running")
}

func TestStartCommandStalledDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected error for a socket whose daemon is not processing")
	}
	if !strings.Contains(err.Error(), "not processing") {
		t.Fatalf("error = %q, want stalled-daemon message", err)
	}
}

func TestStopCommandNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "missing.sock")

	stdout, _, err := runCLI(t, []string{"stop"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, stdout, "Daemon is not running")
}

func TestStatusCommandRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	env.startDaemon(t)

	stdout, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "== System Status ==")
	requireContains(t, stdout, "[OK] Running")
	requireContains(t, stdout, "== Stages ==")
	requireContains(t, stdout, "== Dependencies ==")
	requireContains(t, stdout, "== Artifact Paths ==")
	requireContains(t, stdout, "== Queue Status ==")
	requireContains(t, stdout, "Queue is empty")
}

func TestStatusCommandNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)
	seedClip(t, env, "ambient-001.wav", queue.StatusPending)
	seedClip(t, env, "ambient-002.wav", queue.StatusFailed)

	stdout, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, stdout, "Not running")
	requireContains(t, stdout, "Pending")
	requireContains(t, stdout, "Failed")
}
