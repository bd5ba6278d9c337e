// Package promptgen turns transcripts into image prompts through the
// language model session manager.
package promptgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/queue"
	"murmur/internal/retry"
	"murmur/internal/services"
	"murmur/internal/services/lmstudio"
	"murmur/internal/stage"
	"murmur/internal/transcribe"
)

// Sessions is the model session surface the stage depends on. The
// lmstudio manager implements it; the connection-error hook tears the
// session down through Invalidate so the next attempt dials fresh.
type Sessions interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Invalidate()
}

// Generator is the prompt generation stage handler.
type Generator struct {
	cfg      *config.Config
	store    *queue.Store
	sessions Sessions
	policy   retry.Policy
	logger   *slog.Logger
}

// NewGenerator constructs the handler with its own session manager. Runs
// that share session state with the pipeline's failure accounting should
// construct the manager themselves and use NewGeneratorWithDependencies.
func NewGenerator(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Generator {
	manager := lmstudio.NewManager(cfg.Prompt, lmstudio.WithLogger(logger))
	return NewGeneratorWithDependencies(cfg, store, logger, manager)
}

// NewGeneratorWithDependencies allows injecting the session manager.
func NewGeneratorWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, sessions Sessions) *Generator {
	g := &Generator{
		cfg:      cfg,
		store:    store,
		sessions: sessions,
		policy: retry.Policy{
			MaxAttempts: cfg.Prompt.MaxAttempts,
			Backoff:     time.Duration(cfg.Prompt.RetryDelay) * time.Second,
			// Each call is already time-boxed inside the session manager;
			// a second deadline here would race it.
			Timeout: 0,
		},
	}
	g.SetLogger(logger)
	return g
}

// SetLogger updates the handler's logging destination.
func (g *Generator) SetLogger(logger *slog.Logger) {
	g.logger = logging.NewComponentLogger(logger, "promptgen")
}

// Prepare primes queue progress fields and clears artifacts from any
// earlier run.
func (g *Generator) Prepare(ctx context.Context, item *queue.Item) error {
	if g.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "promptgen", "prepare", "Prompt stage is not configured", nil)
	}
	if g.store == nil {
		return services.Wrap(services.ErrConfiguration, "promptgen", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress("Prompting", "Preparing prompt generation")
	item.PromptPath = ""
	item.PromptText = ""
	return g.store.UpdateProgress(ctx, item)
}

// Execute builds the model input from the transcript, generates the image
// prompt under the stage's attempt budget, and writes the prompt artifact.
func (g *Generator) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, g.logger)

	raw, err := stage.Artifact("promptgen", "transcript", item.Transcript, item.TranscriptPath)
	if err != nil {
		return err
	}
	transcript := transcribe.ExtractContent(raw)
	if transcript == "" {
		return services.Wrap(
			services.ErrValidation,
			"promptgen",
			"load transcript",
			"Transcript is empty; rerun the transcription stage",
			nil,
		)
	}

	content := BuildInput(g.cfg.Prompt.StoryBackground, transcript)
	request := RenderTemplate(g.cfg.Prompt.Template, content)

	item.SetProgress("Prompting", "Waiting for the language model", 10)
	if err := g.store.UpdateProgress(ctx, item); err != nil {
		logger.Debug("progress update failed", logging.Error(err))
	}

	executor := retry.New(g.policy,
		retry.WithLogger(logger),
		retry.WithConnectionErrorHook(g.sessions.Invalidate),
	)
	prompt, err := retry.Do(ctx, executor, "prompt", func(ctx context.Context) (string, error) {
		return g.sessions.Generate(ctx, request)
	})
	if err != nil {
		return err
	}
	prompt = strings.TrimSpace(prompt)

	textDir := g.cfg.TextDir()
	if err := os.MkdirAll(textDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"promptgen",
			"ensure text dir",
			"Failed to create the text directory; set text_dir to a writable path",
			err,
		)
	}
	promptPath := filepath.Join(textDir, stage.ArtifactName("prompt", item.CapturedAt, ".txt"))
	if err := os.WriteFile(promptPath, []byte(prompt+"\n"), 0o644); err != nil {
		return services.Wrap(
			services.ErrTransient,
			"promptgen",
			"write prompt",
			"Failed to write the prompt artifact",
			err,
		)
	}

	item.PromptPath = promptPath
	item.PromptText = prompt
	item.SetProgressComplete("Prompting", fmt.Sprintf("Generated a %d character prompt", len(prompt)))
	logger.Info("image prompt generated",
		logging.String("prompt_file", promptPath),
		logging.Int("characters", len(prompt)))
	return nil
}

// HealthCheck verifies the session endpoint is configured.
func (g *Generator) HealthCheck(ctx context.Context) stage.Health {
	const name = "promptgen"
	if g.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(g.cfg.Prompt.BaseURL) == "" {
		return stage.Unhealthy(name, "prompt base_url not configured")
	}
	if g.sessions == nil {
		return stage.Unhealthy(name, "session manager unavailable")
	}
	return stage.Healthy(name)
}
