package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePrompt(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.Channels < 1 || c.Capture.Channels > 8 {
		return errors.New("capture.channels must be between 1 and 8")
	}
	if c.Capture.ClipSeconds <= 0 {
		return errors.New("capture.clip_seconds must be positive")
	}
	if c.Capture.SampleRate < 0 {
		return errors.New("capture.sample_rate must be >= 0")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	switch c.Transcription.Task {
	case "transcribe", "translate":
	default:
		return fmt.Errorf("transcription.task must be %q or %q", "transcribe", "translate")
	}
	if c.Transcription.MinSilenceMs < 0 {
		return errors.New("transcription.min_silence_ms must be >= 0")
	}
	if c.Transcription.MaxAttempts < 1 {
		return errors.New("transcription.max_attempts must be >= 1")
	}
	return ensurePositiveMap(map[string]int{
		"transcription.beam_size":   c.Transcription.BeamSize,
		"transcription.timeout":     c.Transcription.Timeout,
		"transcription.retry_delay": c.Transcription.RetryDelay,
	})
}

func (c *Config) validatePrompt() error {
	if strings.TrimSpace(c.Prompt.BaseURL) == "" {
		return errors.New("prompt.base_url must be set")
	}
	if !strings.Contains(c.Prompt.Template, "{content}") {
		return errors.New("prompt.template must contain the {content} placeholder")
	}
	if c.Prompt.ConnectRetries < 1 {
		return errors.New("prompt.connect_retries must be >= 1")
	}
	if c.Prompt.MaxAttempts < 1 {
		return errors.New("prompt.max_attempts must be >= 1")
	}
	return ensurePositiveMap(map[string]int{
		"prompt.session_ttl":         c.Prompt.SessionTTL,
		"prompt.request_timeout":     c.Prompt.RequestTimeout,
		"prompt.connect_retry_delay": c.Prompt.ConnectRetryDelay,
		"prompt.retry_delay":         c.Prompt.RetryDelay,
	})
}

func (c *Config) validateRender() error {
	if strings.TrimSpace(c.Render.ServerAddress) == "" {
		return errors.New("render.server_address must be set")
	}
	if c.Render.Timeout < 0 {
		return errors.New("render.timeout must be >= 0")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.queue_poll_interval": c.Pipeline.QueuePollInterval,
		"pipeline.failure_pause":       c.Pipeline.FailurePause,
	}); err != nil {
		return err
	}
	if c.Pipeline.FailureThreshold < 1 {
		return errors.New("pipeline.failure_threshold must be >= 1")
	}
	if c.Pipeline.HeartbeatInterval <= 0 {
		return errors.New("pipeline.heartbeat_interval must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= 0 {
		return errors.New("pipeline.heartbeat_timeout must be positive")
	}
	if c.Pipeline.HeartbeatTimeout <= c.Pipeline.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than pipeline.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
