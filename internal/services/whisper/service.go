package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"murmur/internal/config"
	langpkg "murmur/internal/language"
	"murmur/internal/services"
)

// Service provides faster-whisper transcription capabilities.
type Service struct {
	cfg           config.Transcription
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg config.Transcription) *Service {
	return &Service{cfg: cfg}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return DefaultModel
}

// run executes a command, using the custom runner if set.
func (s *Service) run(ctx context.Context, name string, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// TranscribeResult contains the result of a transcription.
type TranscribeResult struct {
	// Text is the plain text transcription. Empty means no speech was
	// detected in the clip.
	Text string
	// Language is the detected (or configured) language code.
	Language string
	// JSONPath is the path to the generated JSON file.
	JSONPath string
}

// TranscribeFile transcribes an audio clip and returns the text.
// outputDir is where the CLI writes its JSON output file.
func (s *Service) TranscribeFile(ctx context.Context, source, outputDir string) (TranscribeResult, error) {
	var result TranscribeResult

	if strings.TrimSpace(source) == "" {
		return result, services.Wrap(services.ErrValidation, "transcriber", "transcribe", "source path required", nil)
	}
	if outputDir == "" {
		outputDir = filepath.Dir(source)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return result, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	args := s.buildArgs(source, outputDir)
	if err := s.run(ctx, UVXCommand, args...); err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcriber", "transcribe", "whisper run failed", err)
	}

	baseName := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	result.JSONPath = filepath.Join(outputDir, baseName+".json")

	// JSON is the only requested output format, so a missing or unreadable
	// file means the run produced nothing usable.
	payload, err := loadPayload(result.JSONPath)
	if err != nil {
		return result, services.Wrap(services.ErrExternalTool, "transcriber", "transcribe", "read whisper output", err)
	}
	result.Text = payload.transcriptText()
	result.Language = payload.Language

	return result, nil
}

// buildArgs constructs the uvx command arguments for whisper-ctranslate2.
func (s *Service) buildArgs(source, outputDir string) []string {
	args := make([]string, 0, 32)

	args = append(args, "--index-url", PypiIndexURL)

	model := s.cfg.Model
	if model == "" {
		model = DefaultModel
	}
	task := s.cfg.Task
	if task == "" {
		task = DefaultTask
	}
	beamSize := s.cfg.BeamSize
	if beamSize <= 0 {
		beamSize = DefaultBeamSize
	}

	args = append(args,
		WhisperCommand,
		source,
		"--model", model,
		"--task", task,
		"--beam_size", strconv.Itoa(beamSize),
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
	)

	if s.cfg.ModelDir != "" {
		args = append(args, "--model_dir", s.cfg.ModelDir)
	}

	if s.cfg.VADFilter {
		minSilence := s.cfg.MinSilenceMs
		if minSilence <= 0 {
			minSilence = DefaultMinSilenceMs
		}
		args = append(args,
			"--vad_filter", "True",
			"--vad_min_silence_duration_ms", strconv.Itoa(minSilence),
		)
	} else {
		args = append(args, "--vad_filter", "False")
	}

	if lang := langpkg.ToISO2(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	// The CLI resolves auto to CUDA with float16 when a GPU is present and
	// falls back to CPU with int8 otherwise.
	args = append(args, "--device", DeviceAuto, "--compute_type", ComputeTypeAuto)

	return args
}

// Segment represents a transcribed segment from the JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// whisperPayload is the JSON structure written by whisper-ctranslate2.
type whisperPayload struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// transcriptText concatenates segment text, falling back to the top-level
// text field when the tool emitted no segment list.
func (p whisperPayload) transcriptText() string {
	var parts []string
	for _, seg := range p.Segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	if len(parts) == 0 {
		return strings.TrimSpace(p.Text)
	}
	return strings.Join(parts, " ")
}

// LoadSegments loads segments from a whisper JSON output file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	payload, err := loadPayload(jsonPath)
	if err != nil {
		return nil, err
	}
	return payload.Segments, nil
}

func loadPayload(jsonPath string) (whisperPayload, error) {
	var payload whisperPayload
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return payload, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload, nil
}
