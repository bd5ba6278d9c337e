package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/capture"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/promptgen"
	"murmur/internal/queue"
	"murmur/internal/render"
	"murmur/internal/services/lmstudio"
	"murmur/internal/stage"
	"murmur/internal/transcribe"
)

// Recorder is the capture surface the producer loop depends on.
type Recorder interface {
	Record(ctx context.Context) (*capture.Clip, error)
	Close() error
}

// Invalidator tears down the shared language model session. The lmstudio
// manager implements it.
type Invalidator interface {
	Invalidate()
}

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Transcriber stage.Handler
	Generator   stage.Handler
	Renderer    stage.Handler
}

// Dependencies carries the injectable collaborators.
type Dependencies struct {
	Recorder Recorder
	Sessions Invalidator
	Notifier notifications.Service
	Stages   StageSet
}

// Manager coordinates the capture producer and the processing consumer.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	recorder Recorder
	sessions Invalidator
	stages   []pipelineStage

	pollInterval time.Duration
	failurePause time.Duration
	threshold    int
	heartbeat    *HeartbeatMonitor

	mu            sync.RWMutex
	running       bool
	draining      bool
	cancelRun     context.CancelFunc
	cancelCapture context.CancelFunc
	wg            sync.WaitGroup
	lastErr       error
	lastItem      *queue.Item
	started       time.Time
	processed     int
	failed        int
}

// NewManager wires the production collaborators: a portaudio recorder, one
// language model session manager shared between the prompt stage and the
// consecutive-failure reset, and handlers built from the configuration.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	sessions := lmstudio.NewManager(cfg.Prompt, lmstudio.WithLogger(logger))
	return NewManagerWithDependencies(cfg, store, logger, Dependencies{
		Recorder: capture.NewRecorder(cfg.Capture, cfg.AudioDir(), capture.WithLogger(logger)),
		Sessions: sessions,
		Notifier: notifications.NewService(cfg),
		Stages: StageSet{
			Transcriber: transcribe.NewTranscriber(cfg, store, logger),
			Generator:   promptgen.NewGeneratorWithDependencies(cfg, store, logger, sessions),
			Renderer:    render.NewRenderer(cfg, store, logger),
		},
	})
}

// NewManagerWithDependencies constructs a manager around injected
// collaborators (used by tests and one-shot runs).
func NewManagerWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, deps Dependencies) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifier,
		recorder:     deps.Recorder,
		sessions:     deps.Sessions,
		stages:       stageTable(deps.Stages),
		pollInterval: time.Duration(cfg.Pipeline.QueuePollInterval) * time.Second,
		failurePause: time.Duration(cfg.Pipeline.FailurePause) * time.Second,
		threshold:    cfg.Pipeline.FailureThreshold,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Pipeline.HeartbeatTimeout)*time.Second,
		),
	}
}

// Close releases capture resources. Call after Stop.
func (m *Manager) Close() error {
	if m.recorder == nil {
		return nil
	}
	return m.recorder.Close()
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		m.logger.Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err))
	}
}
