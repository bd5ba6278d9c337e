package daemon

import (
	"context"
	"strings"
	"sync"

	"log/slog"

	"github.com/pilebones/go-udev/netlink"

	"murmur/internal/logging"
	"murmur/internal/notifications"
)

// soundMonitor listens for udev netlink events on the sound subsystem and
// reports microphone arrival and removal. The events are informational:
// capture opens devices by configured name, so a device that returns mid-run
// is picked up on the next record attempt without daemon involvement.
type soundMonitor struct {
	logger   *slog.Logger
	notifier notifications.Service

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

func newSoundMonitor(logger *slog.Logger, notifier notifications.Service) *soundMonitor {
	return &soundMonitor{
		logger:   logging.NewComponentLogger(logger, "sound-monitor"),
		notifier: notifier,
	}
}

// Start begins listening for udev netlink events.
func (m *soundMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; device hotplug events will not be reported",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "audio device arrival and removal go unlogged"),
		)
		return nil // Non-fatal - capture carries on without hotplug visibility
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	// Pass quit channel to goroutine to avoid reading m.quit without lock
	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("sound device monitor started",
		logging.String(logging.FieldEventType, "sound_monitor_started"),
	)

	return nil
}

// Stop shuts down the sound monitor.
func (m *soundMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}

	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}

	m.running = false

	m.logger.Info("sound device monitor stopped",
		logging.String(logging.FieldEventType, "sound_monitor_stopped"),
	)
}

// Running reports whether the sound monitor is active.
func (m *soundMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// monitorLoop reads netlink events and reports sound card changes.
func (m *soundMonitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)

	matcher := m.buildMatcher()

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(events, errs, matcher)

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.handleEvent(ctx, uevent)
		case err := <-errs:
			m.logger.Warn("sound monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "sound_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "device hotplug reporting may be affected"),
			)
		}
	}
}

// buildMatcher creates a matcher for sound card add and remove events.
func (m *soundMonitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
		},
	})
	return rules
}

// handleEvent processes a matched uevent.
func (m *soundMonitor) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	card := soundCardName(uevent)
	if card == "" {
		return
	}

	switch string(uevent.Action) {
	case "add":
		m.logger.Info("audio device connected",
			logging.String(logging.FieldDevice, card),
			logging.String(logging.FieldEventType, "audio_device_added"),
		)
		m.publish(ctx, notifications.EventDeviceDetected, card)
	case "remove":
		m.logger.Warn("audio device removed",
			logging.String(logging.FieldDevice, card),
			logging.String(logging.FieldEventType, "audio_device_removed"),
			logging.String(logging.FieldImpact, "capture fails until the device returns or another input is configured"),
		)
		m.publish(ctx, notifications.EventDeviceLost, card)
	}
}

func (m *soundMonitor) publish(ctx context.Context, event notifications.Event, card string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, notifications.Payload{"device": card}); err != nil {
		m.logger.Debug("device notification failed",
			logging.String(logging.FieldDevice, card),
			logging.Error(err))
	}
}

// soundCardName extracts the card identifier from a sound subsystem uevent.
// Plugging one device emits a burst of events (controlC*, pcmC*D*, and the
// card node itself); only the card node identifies the device exactly once.
func soundCardName(uevent netlink.UEvent) string {
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}

	parts := strings.Split(devpath, "/")
	last := parts[len(parts)-1]
	if !strings.HasPrefix(last, "card") {
		return ""
	}
	return last
}
