package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"murmur/internal/capture"
	"murmur/internal/daemonctl"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/promptgen"
	"murmur/internal/queue"
	"murmur/internal/render"
	"murmur/internal/services/lmstudio"
	"murmur/internal/transcribe"
)

func newRunOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Capture one clip and run it through the pipeline",
		Long:  "Record a single clip, then transcribe it, generate a prompt, and render the image in this process. Clips already waiting in the queue are processed first. The daemon must not be running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg == nil {
				return errors.New("configuration not available")
			}

			alive, _, err := daemonctl.ProcessInfo(ctx.socketPath())
			if err != nil {
				return err
			}
			if alive {
				return errors.New("the murmur daemon is running; stop it first or let it process the queue")
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open queue store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			recorder := capture.NewRecorder(cfg.Capture, cfg.AudioDir(), capture.WithLogger(logger))
			fmt.Fprintf(out, "Recording a %d second clip...\n", cfg.Capture.ClipSeconds)
			clip, err := recorder.Record(cmd.Context())
			closeErr := recorder.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}

			item, err := store.NewClip(cmd.Context(), clip.Path, clip.CapturedAt)
			if err != nil {
				return fmt.Errorf("enqueue clip: %w", err)
			}
			fmt.Fprintf(out, "Clip queued as item %d; processing...\n", item.ID)

			sessions := lmstudio.NewManager(cfg.Prompt, lmstudio.WithLogger(logger))
			mgr := pipeline.NewManagerWithDependencies(cfg, store, logger, pipeline.Dependencies{
				Recorder: idleRecorder{},
				Sessions: sessions,
				Stages: pipeline.StageSet{
					Transcriber: transcribe.NewTranscriber(cfg, store, logger),
					Generator:   promptgen.NewGeneratorWithDependencies(cfg, store, logger, sessions),
					Renderer:    render.NewRenderer(cfg, store, logger),
				},
			})
			if err := mgr.Start(cmd.Context()); err != nil {
				return err
			}
			mgr.RequestDrain()
			mgr.Wait()
			mgr.Stop()
			if err := mgr.Close(); err != nil {
				return err
			}

			final, err := store.GetByID(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			if final == nil {
				return fmt.Errorf("item %d disappeared from the queue", item.ID)
			}

			switch final.Status {
			case queue.StatusCompleted:
				fmt.Fprintf(out, "Image ready: %s\n", final.ImagePath)
				return nil
			case queue.StatusReview:
				fmt.Fprintf(out, "Clip needs review: %s\n", final.ReviewReason)
				return nil
			case queue.StatusFailed:
				return fmt.Errorf("pipeline failed: %s", final.ErrorMessage)
			default:
				return fmt.Errorf("pipeline interrupted while item %d was %s", final.ID, final.Status)
			}
		},
	}
}

// idleRecorder satisfies the manager's capture surface for backlog-only
// runs; the clip of interest was recorded before the manager started.
type idleRecorder struct{}

func (idleRecorder) Record(ctx context.Context) (*capture.Clip, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (idleRecorder) Close() error { return nil }
