// Package render drives ComfyUI image generation for queued prompts.
package render

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
	"murmur/internal/services"
	"murmur/internal/services/comfyui"
	"murmur/internal/stage"
)

// Jobs is the image generation surface the stage depends on. The comfyui
// client implements it.
type Jobs interface {
	GenerateImage(ctx context.Context, workflow comfyui.Workflow, prompt string) (*comfyui.ImageResult, error)
}

// Renderer is the image generation stage handler. It runs a single job
// per Execute; attempt budgets belong to callers, and image generation
// gets none.
type Renderer struct {
	cfg    *config.Config
	store  *queue.Store
	client Jobs
	logger *slog.Logger
}

// NewRenderer constructs the handler with a comfyui client built from the
// render configuration.
func NewRenderer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Renderer {
	client := comfyui.NewClient(cfg.Render, comfyui.WithLogger(logger))
	return NewRendererWithDependencies(cfg, store, logger, client)
}

// NewRendererWithDependencies allows injecting the image client.
func NewRendererWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, client Jobs) *Renderer {
	r := &Renderer{
		cfg:    cfg,
		store:  store,
		client: client,
	}
	r.SetLogger(logger)
	return r
}

// SetLogger updates the handler's logging destination.
func (r *Renderer) SetLogger(logger *slog.Logger) {
	r.logger = logging.NewComponentLogger(logger, "render")
}

// Prepare primes queue progress fields and clears artifacts from any
// earlier run.
func (r *Renderer) Prepare(ctx context.Context, item *queue.Item) error {
	if r.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "render", "prepare", "Render stage is not configured", nil)
	}
	if r.store == nil {
		return services.Wrap(services.ErrConfiguration, "render", "prepare", "Queue store unavailable", nil)
	}
	item.InitProgress("Rendering", "Preparing image generation")
	item.ImagePath = ""
	item.RenderJobID = ""
	return r.store.UpdateProgress(ctx, item)
}

// Execute loads the workflow graph, submits one generation job with the
// item's prompt, and writes the returned image artifact.
func (r *Renderer) Execute(ctx context.Context, item *queue.Item) error {
	logger := logging.WithContext(ctx, r.logger)

	prompt, err := stage.Artifact("render", "prompt", item.PromptText, item.PromptPath)
	if err != nil {
		return err
	}

	workflow, err := comfyui.LoadWorkflow(r.cfg.Render.WorkflowPath)
	if err != nil {
		return err
	}

	item.SetProgress("Rendering", "Waiting for the image server", 10)
	if err := r.store.UpdateProgress(ctx, item); err != nil {
		logger.Debug("progress update failed", logging.Error(err))
	}

	runCtx := ctx
	if timeout := r.cfg.Render.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	result, err := r.client.GenerateImage(runCtx, workflow, prompt)
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return services.Wrap(
				services.ErrTimeout,
				"render",
				"generate",
				fmt.Sprintf("Image generation exceeded %d seconds", r.cfg.Render.Timeout),
				err,
			)
		}
		return err
	}

	imageDir := r.cfg.ImageDir()
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration,
			"render",
			"ensure image dir",
			"Failed to create the image directory; set image_dir to a writable path",
			err,
		)
	}
	ext := filepath.Ext(result.Filename)
	if ext == "" {
		ext = ".png"
	}
	imagePath := filepath.Join(imageDir, stage.ArtifactName("image", item.CapturedAt, ext))
	if err := os.WriteFile(imagePath, result.Data, 0o644); err != nil {
		return services.Wrap(
			services.ErrTransient,
			"render",
			"write image",
			"Failed to write the image artifact",
			err,
		)
	}

	item.ImagePath = imagePath
	item.RenderJobID = result.PromptID
	item.SetProgressComplete("Rendering", fmt.Sprintf("Saved %s", filepath.Base(imagePath)))
	logger.Info("image rendered",
		logging.String("image_file", imagePath),
		logging.String("prompt_id", result.PromptID),
		logging.Int("bytes", len(result.Data)),
		logging.Int("nodes_completed", result.Progress.CompletedCount()))
	return nil
}

// HealthCheck verifies the render server address and the workflow graph.
func (r *Renderer) HealthCheck(ctx context.Context) stage.Health {
	const name = "render"
	if r.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(r.cfg.Render.ServerAddress) == "" {
		return stage.Unhealthy(name, "render server_address not configured")
	}
	if path := strings.TrimSpace(r.cfg.Render.WorkflowPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return stage.Unhealthy(name, fmt.Sprintf("workflow file unreadable: %v", err))
		}
	}
	if r.client == nil {
		return stage.Unhealthy(name, "image client unavailable")
	}
	return stage.Healthy(name)
}
