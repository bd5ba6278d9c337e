// Package daemonrun hosts the daemon process runtime: logging setup, pid and
// log file management, queue store bootstrap, and the signal loop that decides
// between draining and immediate shutdown.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/deps"
	"murmur/internal/fileutil"
	"murmur/internal/ipc"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the murmur daemon runtime loop. It returns once the daemon has
// shut down, whether by signal or by an IPC stop request.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, stopSignals := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.LogDir(), fmt.Sprintf("murmur-%s.log", runID))
	logger, err := logging.New(logging.Options{
		Level:            resolveLevel(opts.LogLevel, cfg),
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	currentLogPath := filepath.Join(cfg.LogDir(), "murmur-current.log")
	if err := ensureCurrentLogPointer(currentLogPath, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update murmur-current.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.LogDir(), Pattern: "murmur-*.log", Exclude: []string{logPath, currentLogPath}},
	)

	pidPath := filepath.Join(cfg.LogDir(), "murmurd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	logStartupSnapshot(signalCtx, logger, cfg)

	mgr := pipeline.NewManager(cfg, store, logger)
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = filepath.Join(cfg.LogDir(), "murmur.sock")
	}
	ipcServer, err := ipc.NewServer(cmdCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(cmdCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and queue database access"),
			logging.String(logging.FieldImpact, "daemon answers status queries but is not processing"),
		)
	}

	select {
	case <-d.Done():
	case <-signalCtx.Done():
		drainOrForceStop(logger, d)
	}

	logger.Info("murmur daemon shutting down")
	return nil
}

// drainOrForceStop drains queued clips on the first signal and cuts the drain
// short when a second signal arrives.
func drainOrForceStop(logger *slog.Logger, d *daemon.Daemon) {
	logger.Info("signal received; finishing queued clips before shutdown",
		logging.String(logging.FieldEventType, "daemon_signal"))
	if !d.Shutdown(true) {
		<-d.Done()
		return
	}

	// The first NotifyContext is spent; a fresh registration makes the next
	// signal observable.
	forceCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-d.Done():
	case <-forceCtx.Done():
		logger.Warn("second signal received; stopping without draining",
			logging.String(logging.FieldEventType, "daemon_force_stop"),
			logging.String(logging.FieldImpact, "in-flight clips are interrupted and resume on the next start"))
		d.Shutdown(false)
		<-d.Done()
	}
}

func resolveLevel(level string, cfg *config.Config) string {
	if strings.TrimSpace(level) != "" {
		return level
	}
	return cfg.Logging.Level
}

// logStartupSnapshot records external dependency reachability and artifact
// directory readiness so a misconfigured host is visible in the first screen
// of the run log.
func logStartupSnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	for _, dep := range deps.Snapshot(ctx, cfg) {
		logger.Info("dependency snapshot",
			logging.String(logging.FieldEventType, "dependency_snapshot"),
			logging.String("name", dep.Name),
			logging.String("target", dep.Command),
			logging.Bool("available", dep.Available),
			logging.String("detail", dep.Detail),
		)
	}
	dirs := []struct {
		name string
		path string
	}{
		{name: "audio", path: cfg.AudioDir()},
		{name: "text", path: cfg.TextDir()},
		{name: "images", path: cfg.ImageDir()},
		{name: "logs", path: cfg.LogDir()},
	}
	for _, dir := range dirs {
		status := fileutil.CheckDir(dir.path)
		if status.Writable {
			logger.Info("artifact directory ready",
				logging.String("dir", dir.name),
				logging.String("path", dir.path),
				logging.String("free", fileutil.FormatBytes(status.FreeBytes)),
			)
			continue
		}
		logger.Warn("artifact directory not ready",
			logging.String("dir", dir.name),
			logging.String("path", dir.path),
			logging.String("detail", status.Detail),
			logging.String(logging.FieldEventType, "artifact_dir_unready"),
			logging.String(logging.FieldErrorHint, "create the directory or fix permissions before capture begins"),
			logging.String(logging.FieldImpact, "pipeline stages fail when writing artifacts"),
		)
	}
}

func ensureCurrentLogPointer(current, target string) error {
	if current == "" || target == "" {
		return nil
	}
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
