package daemon

import (
	"context"
	"sync"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"murmur/internal/notifications"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	cards  []string
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	card, _ := payload["device"].(string)
	n.cards = append(n.cards, card)
	return nil
}

func (n *recordingNotifier) snapshot() ([]notifications.Event, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	events := append([]notifications.Event(nil), n.events...)
	cards := append([]string(nil), n.cards...)
	return events, cards
}

func TestSoundMonitorLifecycleIsSafe(t *testing.T) {
	t.Run("stop on nil monitor", func(t *testing.T) {
		var m *soundMonitor
		m.Stop() // must not panic
	})

	t.Run("start on nil monitor", func(t *testing.T) {
		var m *soundMonitor
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start on nil monitor should return nil, got: %v", err)
		}
	})

	t.Run("unstarted monitor reports not running", func(t *testing.T) {
		m := newSoundMonitor(nil, nil)
		if m.Running() {
			t.Error("expected Running() to return false before Start")
		}
	})

	t.Run("double stop", func(t *testing.T) {
		m := newSoundMonitor(nil, nil)
		m.Stop()
		m.Stop() // must not panic
	})

	t.Run("start tolerates missing netlink access", func(t *testing.T) {
		m := newSoundMonitor(nil, nil)
		// Connecting to the kernel netlink socket usually fails in test
		// environments; the monitor treats that as non-fatal.
		if err := m.Start(context.Background()); err != nil {
			t.Fatalf("Start should swallow netlink connect failures, got: %v", err)
		}
		m.Stop()
	})
}

func TestSoundMatcher(t *testing.T) {
	m := newSoundMonitor(nil, nil)
	matcher := m.buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}

	addEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
			"DEVPATH":   "/devices/pci0000:00/usb1/1-2/sound/card1",
		},
	}
	if !matcher.Evaluate(addEvent) {
		t.Error("expected matcher to accept sound add event")
	}

	removeEvent := netlink.UEvent{
		Action: netlink.REMOVE,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
			"DEVPATH":   "/devices/pci0000:00/usb1/1-2/sound/card1",
		},
	}
	if !matcher.Evaluate(removeEvent) {
		t.Error("expected matcher to accept sound remove event")
	}

	changeEvent := netlink.UEvent{
		Action: netlink.CHANGE,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
			"DEVPATH":   "/devices/pci0000:00/usb1/1-2/sound/card1",
		},
	}
	if matcher.Evaluate(changeEvent) {
		t.Error("expected matcher to reject change action")
	}

	blockEvent := netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "block",
			"DEVPATH":   "/devices/pci0000:00/ata1/block/sda",
		},
	}
	if matcher.Evaluate(blockEvent) {
		t.Error("expected matcher to reject non-sound subsystem")
	}
}

func TestSoundCardName(t *testing.T) {
	cases := []struct {
		name    string
		devpath string
		want    string
	}{
		{name: "card node", devpath: "/devices/pci0000:00/usb1/1-2/sound/card1", want: "card1"},
		{name: "control node", devpath: "/devices/pci0000:00/usb1/1-2/sound/card1/controlC1", want: ""},
		{name: "pcm node", devpath: "/devices/pci0000:00/usb1/1-2/sound/card1/pcmC1D0c", want: ""},
		{name: "missing devpath", devpath: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uevent := netlink.UEvent{Env: map[string]string{}}
			if tc.devpath != "" {
				uevent.Env["DEVPATH"] = tc.devpath
			}
			if got := soundCardName(uevent); got != tc.want {
				t.Fatalf("soundCardName(%q) = %q, want %q", tc.devpath, got, tc.want)
			}
		})
	}
}

func TestSoundMonitorHandleEvent(t *testing.T) {
	notifier := &recordingNotifier{}
	m := newSoundMonitor(nil, notifier)

	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
			"DEVPATH":   "/devices/pci0000:00/usb1/1-2/sound/card2",
		},
	})
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.REMOVE,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
			"DEVPATH":   "/devices/pci0000:00/usb1/1-2/sound/card2",
		},
	})
	// Child nodes of the card arrive in the same burst and must not
	// produce duplicate reports.
	m.handleEvent(context.Background(), netlink.UEvent{
		Action: netlink.ADD,
		Env: map[string]string{
			"SUBSYSTEM": "sound",
			"DEVPATH":   "/devices/pci0000:00/usb1/1-2/sound/card2/pcmC2D0c",
		},
	})

	events, cards := notifier.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(events))
	}
	if events[0] != notifications.EventDeviceDetected {
		t.Fatalf("first event = %s, want %s", events[0], notifications.EventDeviceDetected)
	}
	if events[1] != notifications.EventDeviceLost {
		t.Fatalf("second event = %s, want %s", events[1], notifications.EventDeviceLost)
	}
	for _, card := range cards {
		if card != "card2" {
			t.Fatalf("notification carried device %q, want card2", card)
		}
	}
}
