package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/deps"
	"murmur/internal/logging"
	"murmur/internal/notifications"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
)

// dependencyProbeTimeout caps the endpoint dials a status snapshot performs.
const dependencyProbeTimeout = 3 * time.Second

// Daemon owns the pipeline manager lifecycle and enforces single-instance
// execution through a file lock in the log directory.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	pipeline *pipeline.Manager

	lockPath string
	lock     *flock.Flock

	monitor *soundMonitor

	running  atomic.Bool
	draining atomic.Bool

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Draining     bool
	PID          int
	Pipeline     pipeline.StatusSummary
	Dependencies []deps.Status
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, mgr *pipeline.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || mgr == nil {
		return nil, errors.New("daemon requires config, store, and pipeline manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.LogDir(), "murmurd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		pipeline: mgr,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		monitor:  newSoundMonitor(logger, notifications.NewService(cfg)),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the pipeline manager and acquires the daemon lock.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmur daemon instance is already running")
	}

	// Safe now that the lock is held: nothing else is working these items.
	if reset, resetErr := d.store.ResetStuckProcessing(ctx); resetErr != nil {
		d.logger.Warn("failed to reset interrupted items", logging.Error(resetErr))
	} else if reset > 0 {
		d.logger.Info("returned interrupted items to their stage entry",
			logging.Int64("count", reset))
	}

	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	runCtx := d.ctx
	d.mu.Unlock()

	if err := d.pipeline.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		d.mu.Lock()
		if d.cancel != nil {
			d.cancel()
		}
		d.ctx = nil
		d.cancel = nil
		d.mu.Unlock()
		return fmt.Errorf("start pipeline: %w", err)
	}

	_ = d.monitor.Start(runCtx)
	d.running.Store(true)
	d.logger.Info("murmur daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing, releases the daemon lock, and signals
// Done. Safe to call more than once.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		d.signalDone()
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	d.mu.Unlock()

	d.pipeline.Stop()
	d.monitor.Stop()
	d.draining.Store(false)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("murmur daemon stopped")
	d.signalDone()
}

// Shutdown stops the daemon, letting queued work finish first when drain is
// set. It reports whether a drain is in progress; Done is closed once the
// daemon has fully stopped either way.
func (d *Daemon) Shutdown(drain bool) bool {
	if drain && d.running.Load() {
		if d.draining.CompareAndSwap(false, true) {
			d.logger.Info("daemon draining before shutdown",
				logging.String(logging.FieldEventType, "daemon_drain"))
			d.pipeline.RequestDrain()
			go func() {
				d.pipeline.Wait()
				d.Stop()
			}()
		}
		return true
	}
	d.Stop()
	return false
}

// Done is closed once the daemon has stopped and the owning process should
// exit.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Draining reports whether a drain shutdown is in progress.
func (d *Daemon) Draining() bool {
	return d.draining.Load()
}

func (d *Daemon) signalDone() {
	d.doneOnce.Do(func() {
		close(d.done)
	})
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	closeErr := d.pipeline.Close()
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			return err
		}
	}
	return closeErr
}

// ListQueue returns queue items filtered by optional statuses.
func (d *Daemon) ListQueue(ctx context.Context, statuses []queue.Status) ([]*queue.Item, error) {
	if d.store == nil {
		return nil, errors.New("queue store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// ClearQueue removes all queue items.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed queue items.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed queue items.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// RetryFailed resets failed items (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("queue store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// Status returns the current daemon status. Dependency probes run with a
// short timeout so status calls stay responsive while endpoints are down.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.pipeline.Status(ctx)
	depsCtx, cancel := context.WithTimeout(ctx, dependencyProbeTimeout)
	defer cancel()
	return Status{
		Running:      d.running.Load(),
		Draining:     d.draining.Load() || summary.Draining,
		PID:          os.Getpid(),
		Pipeline:     summary,
		Dependencies: deps.Snapshot(depsCtx, d.cfg),
		QueueDBPath:  filepath.Join(d.cfg.LogDir(), "queue.db"),
		LockFilePath: d.lockPath,
	}
}
