package capture

import (
	"fmt"
	"strings"

	"murmur/internal/config"
	"murmur/internal/services"
)

// Device describes an audio device as reported by the backend. Names are
// the stable handle here: the capture host API exposes no portable index.
type Device struct {
	Name              string
	InputChannels     int
	OutputChannels    int
	DefaultSampleRate float64
	SystemDefault     bool
}

// InputCapable reports whether the device can record at all.
func (d Device) InputCapable() bool {
	return d.InputChannels > 0
}

// SelectDevice resolves the input device the capture loop should record
// from. An explicit configured name is matched as a case-insensitive
// substring and must resolve; silently recording from some other device
// would capture the wrong audio. Without an explicit name the loopback
// keywords are searched in device order, then the system default input,
// then the first input-capable device.
func SelectDevice(devices []Device, cfg config.Capture) (Device, error) {
	if want := strings.TrimSpace(cfg.Device); want != "" {
		needle := strings.ToLower(want)
		for _, device := range devices {
			if device.InputCapable() && strings.Contains(strings.ToLower(device.Name), needle) {
				return device, nil
			}
		}
		return Device{}, services.Wrap(services.ErrConfiguration, "capture", "select device",
			fmt.Sprintf("no input device matching %q", want), nil)
	}

	for _, device := range devices {
		if !device.InputCapable() {
			continue
		}
		name := strings.ToLower(device.Name)
		for _, keyword := range cfg.DeviceKeywords {
			if keyword != "" && strings.Contains(name, strings.ToLower(keyword)) {
				return device, nil
			}
		}
	}

	var fallback *Device
	for i := range devices {
		if !devices[i].InputCapable() {
			continue
		}
		if devices[i].SystemDefault {
			return devices[i], nil
		}
		if fallback == nil {
			fallback = &devices[i]
		}
	}
	if fallback != nil {
		return *fallback, nil
	}
	return Device{}, services.Wrap(services.ErrNotFound, "capture", "select device",
		"no audio input devices available", nil)
}

// InputDevices filters the enumeration down to devices that can record,
// preserving backend order for display.
func InputDevices(devices []Device) []Device {
	inputs := make([]Device, 0, len(devices))
	for _, device := range devices {
		if device.InputCapable() {
			inputs = append(inputs, device)
		}
	}
	return inputs
}
