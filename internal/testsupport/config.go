package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.AudioDir = filepath.Join(base, "output", "audio")
	cfgVal.Paths.TextDir = filepath.Join(base, "output", "text")
	cfgVal.Paths.ImageDir = filepath.Join(base, "output", "images")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Transcription.ModelDir = filepath.Join(base, "models")
	cfgVal.Render.ServerAddress = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithCaptureDevice overrides the capture device name on the test config.
func WithCaptureDevice(name string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.Device = name
	}
}

// WithPromptBaseURL points the prompt generator at the provided endpoint.
func WithPromptBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Prompt.BaseURL = url
	}
}

// WithRenderServer points the image renderer at the provided address.
func WithRenderServer(addr string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Render.ServerAddress = addr
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default murmur external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"uvx"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
