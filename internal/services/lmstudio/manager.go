package lmstudio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/services"
)

// Lifecycle defaults applied when the config leaves a field unset.
const (
	DefaultSessionTTL        = 300 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultConnectRetries    = 3
	DefaultConnectRetryDelay = 5 * time.Second
)

// CompletionSession is the slice of Session the manager depends on.
type CompletionSession interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// DialFunc establishes a fresh backend session.
type DialFunc func(ctx context.Context, baseURL, model string) (CompletionSession, error)

// Manager owns the model server session lifecycle. A session is reused for
// rapid consecutive dials within the TTL window, but every successful
// completion retires it so the next request starts from a fresh connection.
type Manager struct {
	cfg     config.Prompt
	logger  *slog.Logger
	dial    DialFunc
	now     func() time.Time
	sleeper func(time.Duration)

	mu            sync.Mutex
	session       CompletionSession
	establishedAt time.Time
}

// Option customizes the manager.
type Option func(*Manager)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDialFunc overrides how backend sessions are established (for testing).
func WithDialFunc(dial DialFunc) Option {
	return func(m *Manager) {
		if dial != nil {
			m.dial = dial
		}
	}
}

// WithClock overrides the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSleeper overrides how reconnect backoff sleeps are performed.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(m *Manager) {
		m.sleeper = sleeper
	}
}

// NewManager creates a session manager for the configured backend.
func NewManager(cfg config.Prompt, opts ...Option) *Manager {
	manager := &Manager{
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	manager.dial = func(ctx context.Context, baseURL, model string) (CompletionSession, error) {
		return Dial(ctx, baseURL, model)
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager
}

// Acquire returns a live session, reusing the current one while it is
// within the TTL window. When a fresh session is needed the stale handle is
// closed first and the backend is dialed up to the configured retry budget
// with linear backoff. Exhausting the budget surfaces an unavailable error,
// which the stage executor treats as terminal.
func (m *Manager) Acquire(ctx context.Context) (CompletionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquireLocked(ctx)
}

func (m *Manager) acquireLocked(ctx context.Context) (CompletionSession, error) {
	if m.session != nil && m.now().Sub(m.establishedAt) <= m.sessionTTL() {
		return m.session, nil
	}
	m.invalidateLocked()

	retries := m.connectRetries()
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, err := m.dial(ctx, m.cfg.BaseURL, m.cfg.Model)
		if err == nil {
			m.session = session
			m.establishedAt = m.now()
			m.logger.Info("model session established",
				logging.String(logging.FieldStage, "prompt"),
				logging.Int(logging.FieldAttempt, attempt),
				logging.Int(logging.FieldMaxAttempts, retries),
			)
			return session, nil
		}
		lastErr = err
		m.logger.Warn("model session dial failed",
			logging.String(logging.FieldStage, "prompt"),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Int(logging.FieldMaxAttempts, retries),
			logging.Error(err),
		)

		if attempt < retries {
			if err := m.sleep(ctx, m.connectRetryDelay()*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, services.Wrap(services.ErrUnavailable, "prompt", "connect",
		fmt.Sprintf("no session after %d attempts", retries), lastErr)
}

// Invalidate closes and forgets the current session. Errors from closing a
// broken handle are discarded; the point is that the next Acquire dials
// fresh.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

func (m *Manager) invalidateLocked() {
	if m.session == nil {
		return
	}
	_ = m.session.Close()
	m.session = nil
	m.establishedAt = time.Time{}
}

// Generate acquires a session and runs one completion under the request
// deadline. The call runs on its own goroutine so a backend that ignores
// cancellation is abandoned when the deadline fires; in that case the
// session is forcibly invalidated and a timeout failure is returned. After
// a successful completion the session is always invalidated before
// returning. A whitespace-only completion reports an empty result and
// leaves the session in place for the next attempt.
func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	session, err := m.Acquire(ctx)
	if err != nil {
		return "", err
	}

	timeout := m.requestTimeout()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	results := make(chan outcome, 1)
	go func() {
		text, err := session.Complete(callCtx, prompt)
		results <- outcome{text: text, err: err}
	}()

	select {
	case res := <-results:
		if res.err != nil {
			return "", res.err
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return "", services.Wrap(services.ErrEmptyResult, "prompt", "complete", "model returned no text", nil)
		}
		m.Invalidate()
		return text, nil
	case <-callCtx.Done():
		m.Invalidate()
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrTimeout, "prompt", "complete",
			fmt.Sprintf("no completion within %s", timeout), context.DeadlineExceeded)
	}
}

func (m *Manager) sessionTTL() time.Duration {
	if m.cfg.SessionTTL > 0 {
		return time.Duration(m.cfg.SessionTTL) * time.Second
	}
	return DefaultSessionTTL
}

func (m *Manager) requestTimeout() time.Duration {
	if m.cfg.RequestTimeout > 0 {
		return time.Duration(m.cfg.RequestTimeout) * time.Second
	}
	return DefaultRequestTimeout
}

func (m *Manager) connectRetries() int {
	if m.cfg.ConnectRetries > 0 {
		return m.cfg.ConnectRetries
	}
	return DefaultConnectRetries
}

func (m *Manager) connectRetryDelay() time.Duration {
	if m.cfg.ConnectRetryDelay > 0 {
		return time.Duration(m.cfg.ConnectRetryDelay) * time.Second
	}
	return DefaultConnectRetryDelay
}

func (m *Manager) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if m.sleeper != nil {
		m.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ CompletionSession = (*Session)(nil)
