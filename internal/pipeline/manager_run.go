package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/queue"
	"murmur/internal/services"
)

// Start begins the capture and processing loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	if m.recorder == nil {
		m.mu.Unlock()
		return errors.New("capture recorder not configured")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("pipeline stages not configured")
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	captureCtx, cancelCapture := context.WithCancel(runCtx)
	m.cancelRun = cancelRun
	m.cancelCapture = cancelCapture
	m.running = true
	m.draining = false
	m.started = time.Now()
	m.processed = 0
	m.failed = 0
	m.wg.Add(2)
	m.mu.Unlock()

	go m.runCapture(captureCtx)
	go m.runProcessing(runCtx)

	m.publish(ctx, notifications.EventPipelineStarted, notifications.Payload{
		"device": m.cfg.Capture.Device,
	})
	return nil
}

// Stop terminates both loops immediately and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancelRun
	m.running = false
	m.draining = false
	m.cancelRun = nil
	m.cancelCapture = nil
	processed := m.processed
	failed := m.failed
	started := m.started
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	// The run context is gone by now; the farewell goes out on its own.
	m.publish(context.Background(), notifications.EventPipelineStopped, notifications.Payload{
		"processed": processed,
		"failed":    failed,
		"duration":  time.Since(started),
	})
}

// RequestDrain stops the capture loop and lets the processing loop finish
// every item enqueued before the request. Wait blocks until it does.
func (m *Manager) RequestDrain() {
	m.mu.Lock()
	if !m.running || m.draining {
		m.mu.Unlock()
		return
	}
	m.draining = true
	cancelCapture := m.cancelCapture
	m.mu.Unlock()

	m.logger.Info("drain requested; finishing queued clips")
	if cancelCapture != nil {
		cancelCapture()
	}
}

// Wait blocks until both loops have exited.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) isDraining() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.draining
}

func (m *Manager) runCapture(ctx context.Context) {
	defer m.wg.Done()
	ctx = services.WithLane(ctx, "capture")
	logger := m.logger.With(logging.String(logging.FieldComponent, "capture-loop"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		clip, err := m.recorder.Record(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("clip capture failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "capture_failed"))
			m.pauseAfterFailure(ctx)
			continue
		}

		item, err := m.store.NewClip(ctx, clip.Path, clip.CapturedAt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to enqueue captured clip",
				logging.Error(err),
				logging.String("audio_file", clip.Path),
				logging.String(logging.FieldEventType, "enqueue_failed"))
			m.pauseAfterFailure(ctx)
			continue
		}

		logger.Info("clip enqueued",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("audio_file", clip.Path),
			logging.String(logging.FieldDevice, clip.Device),
			logging.Duration("clip_duration", clip.Duration))
	}
}

func (m *Manager) runProcessing(ctx context.Context) {
	defer m.wg.Done()
	ctx = services.WithLane(ctx, "process")
	logger := m.logger.With(logging.String(logging.FieldComponent, "processing-loop"))

	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleItems(ctx, logger, m.processingStatuses()); err != nil {
			logger.Warn("reclaim stale processing failed; stuck items may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"))
		}

		item, err := m.store.NextForStatuses(ctx, m.claimStatuses()...)
		if err != nil {
			m.handleNextItemError(ctx, logger, err)
			continue
		}
		if item == nil {
			if m.isDraining() {
				logger.Info("queue drained; processing loop exiting")
				return
			}
			m.waitForItemOrShutdown(ctx)
			continue
		}

		err = m.processItem(ctx, logger, item)
		switch {
		case err == nil && item.Status == queue.StatusCompleted:
			consecutiveFailures = 0
			m.recordCompletion(ctx, item)
		case err == nil:
			// Intermediate stage success; the item stays eligible.
		case errors.Is(err, context.Canceled):
			return
		default:
			consecutiveFailures++
			m.recordFailure()
			if m.threshold > 0 && consecutiveFailures >= m.threshold {
				logger.Warn("consecutive failures reached threshold; invalidating language model session",
					logging.Int("failures", consecutiveFailures),
					logging.String(logging.FieldEventType, "failure_threshold"))
				if m.sessions != nil {
					m.sessions.Invalidate()
				}
				consecutiveFailures = 0
			}
		}
	}
}

func (m *Manager) handleNextItemError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logger.Error("failed to fetch next queue item",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"))
	m.pauseAfterFailure(ctx)
}

func (m *Manager) waitForItemOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) pauseAfterFailure(ctx context.Context) {
	if m.failurePause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(m.failurePause):
	}
}
