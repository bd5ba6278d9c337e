package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"murmur/internal/config"
	"murmur/internal/services"
)

func writeWhisperJSON(t *testing.T, path string, payload whisperPayload) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

func flagValue(args []string, flag string) (string, bool) {
	for i, arg := range args {
		if arg == flag && i+1 < len(args) {
			return args[i+1], true
		}
	}
	return "", false
}

func TestTranscribeFileParsesSegments(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "clip.wav")
	if err := os.WriteFile(source, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	outputDir := filepath.Join(tmp, "out")

	var gotName string
	var gotArgs []string
	service := NewService(config.Transcription{Model: "small"})
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		writeWhisperJSON(t, filepath.Join(outputDir, "clip.json"), whisperPayload{
			Segments: []Segment{
				{Text: " Hello there.", Start: 0, End: 1.5},
				{Text: "General Kenobi. ", Start: 1.5, End: 3},
			},
			Language: "en",
		})
		return nil
	})

	result, err := service.TranscribeFile(context.Background(), source, outputDir)
	if err != nil {
		t.Fatalf("TranscribeFile returned error: %v", err)
	}
	if gotName != UVXCommand {
		t.Fatalf("expected %s invocation, got %q", UVXCommand, gotName)
	}
	if got, ok := flagValue(gotArgs, "--model"); !ok || got != "small" {
		t.Fatalf("expected --model small, got %q (args %v)", got, gotArgs)
	}
	if result.Text != "Hello there. General Kenobi." {
		t.Fatalf("unexpected transcript text: %q", result.Text)
	}
	if result.Language != "en" {
		t.Fatalf("unexpected language: %q", result.Language)
	}
	if result.JSONPath != filepath.Join(outputDir, "clip.json") {
		t.Fatalf("unexpected json path: %q", result.JSONPath)
	}
}

func TestTranscribeFileFallsBackToTextField(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "clip.wav")
	if err := os.WriteFile(source, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	service := NewService(config.Transcription{})
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		writeWhisperJSON(t, filepath.Join(tmp, "clip.json"), whisperPayload{Text: "  plain text  "})
		return nil
	})

	result, err := service.TranscribeFile(context.Background(), source, "")
	if err != nil {
		t.Fatalf("TranscribeFile returned error: %v", err)
	}
	if result.Text != "plain text" {
		t.Fatalf("unexpected transcript text: %q", result.Text)
	}
}

func TestTranscribeFileRequiresSource(t *testing.T) {
	service := NewService(config.Transcription{})
	if _, err := service.TranscribeFile(context.Background(), "  ", t.TempDir()); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTranscribeFileWrapsCommandFailure(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "clip.wav")
	if err := os.WriteFile(source, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	boom := errors.New("uvx exploded")
	service := NewService(config.Transcription{})
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return boom
	})

	_, err := service.TranscribeFile(context.Background(), source, tmp)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped command error, got %v", err)
	}
}

func TestTranscribeFileFailsWhenOutputMissing(t *testing.T) {
	tmp := t.TempDir()
	source := filepath.Join(tmp, "clip.wav")
	if err := os.WriteFile(source, []byte("fake audio"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	service := NewService(config.Transcription{})
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return nil
	})

	if _, err := service.TranscribeFile(context.Background(), source, tmp); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error for missing output, got %v", err)
	}
}

func TestBuildArgsHonorsConfig(t *testing.T) {
	service := NewService(config.Transcription{
		Model:        "large-v3",
		ModelDir:     "/models/whisper",
		Language:     "english",
		Task:         "translate",
		BeamSize:     12,
		VADFilter:    true,
		MinSilenceMs: 750,
	})

	args := service.buildArgs("/audio/clip.wav", "/text")

	if args[0] != "--index-url" || args[1] != PypiIndexURL {
		t.Fatalf("expected index url first, got %v", args[:2])
	}
	wantPairs := [][2]string{
		{"--model", "large-v3"},
		{"--model_dir", "/models/whisper"},
		{"--task", "translate"},
		{"--beam_size", "12"},
		{"--output_dir", "/text"},
		{"--output_format", OutputFormat},
		{"--vad_filter", "True"},
		{"--vad_min_silence_duration_ms", "750"},
		{"--language", "en"},
		{"--device", DeviceAuto},
		{"--compute_type", ComputeTypeAuto},
	}
	for _, pair := range wantPairs {
		got, ok := flagValue(args, pair[0])
		if !ok {
			t.Fatalf("missing %s in args %v", pair[0], args)
		}
		if got != pair[1] {
			t.Fatalf("%s = %q, want %q", pair[0], got, pair[1])
		}
	}
}

func TestBuildArgsDefaultsAndDisabledVAD(t *testing.T) {
	service := NewService(config.Transcription{})

	args := service.buildArgs("/audio/clip.wav", "/text")

	if got, _ := flagValue(args, "--model"); got != DefaultModel {
		t.Fatalf("expected default model, got %q", got)
	}
	if got, _ := flagValue(args, "--task"); got != DefaultTask {
		t.Fatalf("expected default task, got %q", got)
	}
	if got, _ := flagValue(args, "--vad_filter"); got != "False" {
		t.Fatalf("expected vad disabled, got %q", got)
	}
	if _, ok := flagValue(args, "--vad_min_silence_duration_ms"); ok {
		t.Fatalf("expected no min silence flag when vad disabled: %v", args)
	}
	if _, ok := flagValue(args, "--language"); ok {
		t.Fatalf("expected no language flag for auto-detect: %v", args)
	}
	if _, ok := flagValue(args, "--model_dir"); ok {
		t.Fatalf("expected no model_dir flag when unset: %v", args)
	}
}
