package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizePrompt()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.AudioDir, err = c.resolveArtifactDir(c.Paths.AudioDir, defaultAudioSubdir, "paths.audio_dir"); err != nil {
		return err
	}
	if c.Paths.TextDir, err = c.resolveArtifactDir(c.Paths.TextDir, defaultTextSubdir, "paths.text_dir"); err != nil {
		return err
	}
	if c.Paths.ImageDir, err = c.resolveArtifactDir(c.Paths.ImageDir, defaultImageSubdir, "paths.image_dir"); err != nil {
		return err
	}
	return nil
}

// resolveArtifactDir treats relative entries as subdirectories of the output
// dir, matching how clips, transcripts, and images sit beside each other.
func (c *Config) resolveArtifactDir(value, fallback, key string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		value = fallback
	}
	if !filepath.IsAbs(value) && !strings.HasPrefix(value, "~") {
		return filepath.Join(c.Paths.OutputDir, value), nil
	}
	expanded, err := expandPath(value)
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, err)
	}
	return expanded, nil
}

func (c *Config) normalizeCapture() {
	c.Capture.Device = strings.TrimSpace(c.Capture.Device)
	keywords := make([]string, 0, len(c.Capture.DeviceKeywords))
	seen := make(map[string]struct{}, len(c.Capture.DeviceKeywords))
	for _, keyword := range c.Capture.DeviceKeywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		keywords = append(keywords, normalized)
	}
	if len(keywords) == 0 {
		keywords = defaultDeviceKeywords()
	}
	c.Capture.DeviceKeywords = keywords
	if c.Capture.Channels <= 0 {
		c.Capture.Channels = defaultCaptureChannels
	}
	if c.Capture.SampleRate < 0 {
		c.Capture.SampleRate = 0
	}
}

func (c *Config) normalizeTranscription() error {
	var err error
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
	if strings.TrimSpace(c.Transcription.ModelDir) == "" {
		c.Transcription.ModelDir = defaultModelDir()
	}
	if c.Transcription.ModelDir, err = expandPath(c.Transcription.ModelDir); err != nil {
		return fmt.Errorf("transcription.model_dir: %w", err)
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	c.Transcription.Task = strings.ToLower(strings.TrimSpace(c.Transcription.Task))
	if c.Transcription.Task == "" {
		c.Transcription.Task = defaultTranscriptionTask
	}
	return nil
}

func (c *Config) normalizePrompt() {
	c.Prompt.BaseURL = strings.TrimSpace(c.Prompt.BaseURL)
	if c.Prompt.BaseURL == "" {
		c.Prompt.BaseURL = defaultPromptBaseURL
	}
	c.Prompt.Model = strings.TrimSpace(c.Prompt.Model)
	if strings.TrimSpace(c.Prompt.StoryBackground) == "" {
		c.Prompt.StoryBackground = defaultStoryBackground
	}
	if strings.TrimSpace(c.Prompt.Template) == "" {
		c.Prompt.Template = defaultPromptTemplate
	}
}

func (c *Config) normalizeRender() error {
	var err error
	c.Render.ServerAddress = strings.TrimSpace(c.Render.ServerAddress)
	if c.Render.ServerAddress == "" {
		c.Render.ServerAddress = defaultRenderServerAddress
	}
	c.Render.ClientID = strings.TrimSpace(c.Render.ClientID)
	c.Render.WorkflowPath = strings.TrimSpace(c.Render.WorkflowPath)
	if c.Render.WorkflowPath != "" {
		if c.Render.WorkflowPath, err = expandPath(c.Render.WorkflowPath); err != nil {
			return fmt.Errorf("render.workflow_path: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("MURMUR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
