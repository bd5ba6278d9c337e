// Package transcribe turns captured clips into transcript artifacts.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/language"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/retry"
	"murmur/internal/services"
	"murmur/internal/services/whisper"
	"murmur/internal/stage"
)

// Client is the transcription service surface the stage depends on.
type Client interface {
	TranscribeFile(ctx context.Context, source, outputDir string) (whisper.TranscribeResult, error)
	Model() string
}

// Transcriber is the speech-to-text stage handler.
type Transcriber struct {
	cfg    *config.Config
	store  *queue.Store
	client Client
	policy retry.Policy
	logger *slog.Logger
	now    func() time.Time
}

// NewTranscriber constructs the transcription handler with the real
// whisper CLI client.
func NewTranscriber(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcriber {
	return NewTranscriberWithDependencies(cfg, store, logger, whisper.NewService(cfg.Transcription))
}

// NewTranscriberWithDependencies allows injecting a custom transcription
// client (used for tests).
func NewTranscriberWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client Client) *Transcriber {
	t := &Transcriber{
		cfg:    cfg,
		store:  store,
		client: client,
		policy: retry.Policy{
			MaxAttempts: cfg.Transcription.MaxAttempts,
			Backoff:     time.Duration(cfg.Transcription.RetryDelay) * time.Second,
			Timeout:     time.Duration(cfg.Transcription.Timeout) * time.Second,
		},
		now: time.Now,
	}
	t.SetLogger(logger)
	return t
}

// SetLogger updates the handler's logging destination.
func (t *Transcriber) SetLogger(logger *slog.Logger) {
	t.logger = logging.NewComponentLogger(logger, "transcriber")
}

// Prepare primes queue progress fields and clears artifacts from any
// earlier run so a retry starts clean.
func (t *Transcriber) Prepare(ctx context.Context, item *queue.Item) error {
	if t.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "transcribe", "prepare", "Transcription stage is not configured", nil)
	}
	if t.store == nil {
		return services.Wrap(services.ErrConfiguration, "transcribe", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress("Transcribing", "Preparing transcription")
	item.TranscriptPath = ""
	item.Transcript = ""
	return t.store.UpdateProgress(ctx, item)
}

// Execute runs the whisper client under the stage's attempt budget and
// writes the transcript artifact. A clip with no detected speech finishes
// the item without downstream stages.
func (t *Transcriber) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, t.logger)

	audioPath := strings.TrimSpace(item.AudioPath)
	if audioPath == "" {
		return services.Wrap(
			services.ErrValidation,
			"transcribe",
			"validate inputs",
			"No captured audio on this item; re-record the clip",
			nil,
		)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return services.Wrap(
			services.ErrValidation,
			"transcribe",
			"validate inputs",
			fmt.Sprintf("Audio file %q is not readable", audioPath),
			err,
		)
	}

	textDir := t.cfg.TextDir()
	if err := os.MkdirAll(textDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"transcribe",
			"ensure text dir",
			"Failed to create the text directory; set text_dir to a writable path",
			err,
		)
	}

	item.SetProgress("Transcribing", fmt.Sprintf("Running %s", t.client.Model()), 10)
	if err := t.store.UpdateProgress(ctx, item); err != nil {
		logger.Debug("progress update failed", logging.Error(err))
	}

	executor := retry.New(t.policy, retry.WithLogger(logger))
	result, err := retry.Do(ctx, executor, "transcribe", func(ctx context.Context) (whisper.TranscribeResult, error) {
		return t.client.TranscribeFile(ctx, audioPath, textDir)
	})
	if err != nil {
		return err
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		// A silent clip is a normal outcome of ambient capture, not a
		// failure; the item finishes here without downstream stages.
		logger.Info("no speech detected in clip",
			logging.String("audio_file", audioPath))
		item.Status = queue.StatusCompleted
		item.SetProgressComplete("Transcribing", "No speech detected")
		return nil
	}

	transcriptPath := filepath.Join(textDir, stage.ArtifactName("transcription", item.CapturedAt, ".txt"))
	if err := WriteTranscript(transcriptPath, audioPath, t.now(), text); err != nil {
		return services.Wrap(
			services.ErrTransient,
			"transcribe",
			"write transcript",
			"Failed to write the transcript artifact",
			err,
		)
	}

	item.TranscriptPath = transcriptPath
	item.Transcript = text
	item.SetProgressComplete("Transcribing", fmt.Sprintf("Transcribed %d characters", len(text)))

	attrs := []logging.Attr{
		logging.String("transcript", transcriptPath),
		logging.Int("characters", len(text)),
	}
	if result.Language != "" {
		attrs = append(attrs, logging.String("language", language.DisplayName(result.Language)))
	}
	logger.Info("transcription complete", logging.Args(attrs...)...)
	return nil
}

// HealthCheck verifies the whisper launcher is reachable.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcriber"
	if t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(t.cfg.Transcription.Model) == "" {
		return stage.Unhealthy(name, "whisper model not configured")
	}
	if _, err := exec.LookPath(whisper.UVXCommand); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("%s launcher not found on PATH", whisper.UVXCommand))
	}
	return stage.Healthy(name)
}
