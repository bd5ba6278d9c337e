package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
	"murmur/internal/services"
	"murmur/internal/stage"
	"murmur/internal/stageexec"
)

type pipelineStage struct {
	name       string
	handler    stage.Handler
	start      queue.Status
	processing queue.Status
	done       queue.Status
}

func stageTable(set StageSet) []pipelineStage {
	stages := []pipelineStage{
		{name: "transcribe", handler: set.Transcriber, start: queue.StatusPending, processing: queue.StatusTranscribing, done: queue.StatusTranscribed},
		{name: "promptgen", handler: set.Generator, start: queue.StatusTranscribed, processing: queue.StatusPrompting, done: queue.StatusPrompted},
		{name: "render", handler: set.Renderer, start: queue.StatusPrompted, processing: queue.StatusRendering, done: queue.StatusCompleted},
	}
	configured := stages[:0]
	for _, stg := range stages {
		if stg.handler == nil {
			continue
		}
		configured = append(configured, stg)
	}
	return configured
}

func (m *Manager) claimStatuses() []queue.Status {
	statuses := make([]queue.Status, 0, len(m.stages))
	for _, stg := range m.stages {
		statuses = append(statuses, stg.start)
	}
	return statuses
}

func (m *Manager) processingStatuses() []queue.Status {
	statuses := make([]queue.Status, 0, len(m.stages))
	for _, stg := range m.stages {
		statuses = append(statuses, stg.processing)
	}
	return statuses
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	for _, stg := range m.stages {
		if stg.start == status {
			return stg, true
		}
	}
	return pipelineStage{}, false
}

// processItem advances one item by one stage. The next loop iteration picks
// the item up again for its following stage, so an older item finishes its
// whole pipeline before a newer one starts.
func (m *Manager) processItem(ctx context.Context, logger *slog.Logger, item *queue.Item) error {
	stg, ok := m.stageForStatus(item.Status)
	if !ok {
		logger.Warn("no stage configured for status", logging.String("status", string(item.Status)))
		m.waitForItemOrShutdown(ctx)
		return nil
	}

	// One correlation ID per stage execution ties the stage, heartbeat,
	// and service logs for this attempt together.
	ctx = services.WithRequestID(ctx, uuid.NewString())

	err := m.executeWithHeartbeat(ctx, stg, item)
	m.setLastItem(item)
	if err != nil {
		m.setLastError(err)
	}
	return err
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, stg pipelineStage, item *queue.Item) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, item.ID)

	err := stageexec.Run(ctx, stageexec.Options{
		Logger:     m.logger,
		Store:      m.store,
		Notifier:   m.notifier,
		Handler:    stg.handler,
		StageName:  stg.name,
		Processing: stg.processing,
		Done:       stg.done,
		Item:       item,
	})
	hbCancel()
	hbWG.Wait()
	return err
}

func (m *Manager) recordCompletion(ctx context.Context, item *queue.Item) {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()

	// Silent clips complete without rendering; there is nothing to announce.
	if item.ImagePath == "" {
		return
	}
	m.publish(ctx, notifications.EventImageReady, notifications.Payload{
		"image":  filepath.Base(item.ImagePath),
		"prompt": item.PromptText,
	})
}

func (m *Manager) recordFailure() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}
