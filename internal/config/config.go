package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration for artifacts and logs.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	AudioDir  string `toml:"audio_dir"`
	TextDir   string `toml:"text_dir"`
	ImageDir  string `toml:"image_dir"`
	LogDir    string `toml:"log_dir"`
}

// Capture contains configuration for the audio capture loop.
type Capture struct {
	// Device is a case-insensitive substring matched against input device
	// names. Empty means search DeviceKeywords, then the system default.
	Device         string   `toml:"device"`
	DeviceKeywords []string `toml:"device_keywords"`
	Channels       int      `toml:"channels"`
	// SampleRate of 0 uses the device's default rate.
	SampleRate  int `toml:"sample_rate"`
	ClipSeconds int `toml:"clip_seconds"`
}

// Transcription contains configuration for the speech-to-text stage.
type Transcription struct {
	Model    string `toml:"model"`
	ModelDir string `toml:"model_dir"`
	// Language is an ISO 639-1 hint; empty lets the model auto-detect.
	Language     string `toml:"language"`
	Task         string `toml:"task"`
	BeamSize     int    `toml:"beam_size"`
	VADFilter    bool   `toml:"vad_filter"`
	MinSilenceMs int    `toml:"min_silence_ms"`
	Timeout      int    `toml:"timeout"`
	MaxAttempts  int    `toml:"max_attempts"`
	RetryDelay   int    `toml:"retry_delay"`
}

// Prompt contains configuration for the language model prompt stage.
type Prompt struct {
	BaseURL string `toml:"base_url"`
	// Model of "" uses whatever model the server has loaded.
	Model             string `toml:"model"`
	SessionTTL        int    `toml:"session_ttl"`
	RequestTimeout    int    `toml:"request_timeout"`
	ConnectRetries    int    `toml:"connect_retries"`
	ConnectRetryDelay int    `toml:"connect_retry_delay"`
	MaxAttempts       int    `toml:"max_attempts"`
	RetryDelay        int    `toml:"retry_delay"`
	StoryBackground   string `toml:"story_background"`
	// Template must contain the {content} placeholder.
	Template string `toml:"template"`
}

// Render contains configuration for the image generation stage.
type Render struct {
	ServerAddress string `toml:"server_address"`
	// ClientID of "" generates a fresh UUID per run.
	ClientID string `toml:"client_id"`
	// WorkflowPath of "" uses the embedded default workflow graph.
	WorkflowPath string `toml:"workflow_path"`
	// Timeout of 0 leaves generation unbounded; the stream still honors
	// shutdown cancellation.
	Timeout int `toml:"timeout"`
}

// Pipeline contains configuration for coordinator timing and thresholds.
type Pipeline struct {
	QueuePollInterval int `toml:"queue_poll_interval"`
	FailurePause      int `toml:"failure_pause"`
	FailureThreshold  int `toml:"failure_threshold"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ImageReady     bool   `toml:"image_ready"`
	Errors         bool   `toml:"errors"`
	Devices        bool   `toml:"devices"`
	Lifecycle      bool   `toml:"lifecycle"`
}

// Config encapsulates all configuration values for Murmur.
//
// Configuration sections by subsystem:
//   - Paths: artifact and log directories
//   - Capture: input device selection and clip length
//   - Transcription: speech-to-text model and retry budget
//   - Prompt: language model session lifecycle and prompt template
//   - Render: image generation server and workflow graph
//   - Pipeline: coordinator polling, pauses, and failure thresholds
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Capture       Capture       `toml:"capture"`
	Transcription Transcription `toml:"transcription"`
	Prompt        Prompt        `toml:"prompt"`
	Render        Render        `toml:"render"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/murmur/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/murmur/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("murmur.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The transcription model directory is created on a best-effort basis so the
// daemon can run before the first model download.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.AudioDir(), c.TextDir(), c.ImageDir(), c.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Transcription.ModelDir) != "" {
		_ = os.MkdirAll(c.Transcription.ModelDir, 0o755)
	}
	return nil
}

// LogDir returns the resolved log directory.
func (c *Config) LogDir() string {
	return c.Paths.LogDir
}

// AudioDir returns the resolved directory for captured WAV clips.
func (c *Config) AudioDir() string {
	return c.Paths.AudioDir
}

// TextDir returns the resolved directory for transcripts and prompts.
func (c *Config) TextDir() string {
	return c.Paths.TextDir
}

// ImageDir returns the resolved directory for generated images.
func (c *Config) ImageDir() string {
	return c.Paths.ImageDir
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultModelDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "murmur", "models")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/murmur/models"
	}
	return filepath.Join(home, ".cache", "murmur", "models")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
