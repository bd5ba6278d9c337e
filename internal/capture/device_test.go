package capture

import (
	"errors"
	"testing"

	"murmur/internal/config"
	"murmur/internal/services"
)

func TestSelectDevice(t *testing.T) {
	devices := []Device{
		{Name: "HDMI Output", OutputChannels: 2},
		{Name: "Stereo Mix (Realtek)", InputChannels: 2, DefaultSampleRate: 48000},
		{Name: "USB Microphone", InputChannels: 1, DefaultSampleRate: 44100, SystemDefault: true},
		{Name: "Webcam Mic", InputChannels: 1, DefaultSampleRate: 16000},
	}

	tests := []struct {
		name     string
		cfg      config.Capture
		wantName string
		wantErr  error
	}{
		{
			name:     "explicit substring is case-insensitive",
			cfg:      config.Capture{Device: "usb micro"},
			wantName: "USB Microphone",
		},
		{
			name:    "explicit miss is a configuration error",
			cfg:     config.Capture{Device: "bluetooth headset"},
			wantErr: services.ErrConfiguration,
		},
		{
			name:     "keyword search finds the loopback device",
			cfg:      config.Capture{DeviceKeywords: []string{"what u hear", "stereo mix"}},
			wantName: "Stereo Mix (Realtek)",
		},
		{
			name:     "no keyword match falls back to the system default",
			cfg:      config.Capture{DeviceKeywords: []string{"loopback"}},
			wantName: "USB Microphone",
		},
		{
			name:     "empty config picks the system default input",
			cfg:      config.Capture{},
			wantName: "USB Microphone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, err := SelectDevice(devices, tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectDevice error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectDevice returned error: %v", err)
			}
			if device.Name != tt.wantName {
				t.Fatalf("selected %q, want %q", device.Name, tt.wantName)
			}
		})
	}
}

func TestSelectDeviceIgnoresOutputOnlyKeywordMatch(t *testing.T) {
	devices := []Device{
		{Name: "Stereo Mix Monitor", OutputChannels: 2},
		{Name: "Line In", InputChannels: 2},
	}
	device, err := SelectDevice(devices, config.Capture{DeviceKeywords: []string{"stereo mix"}})
	if err != nil {
		t.Fatalf("SelectDevice returned error: %v", err)
	}
	if device.Name != "Line In" {
		t.Fatalf("selected %q, want the input-capable fallback", device.Name)
	}
}

func TestSelectDeviceWithoutInputs(t *testing.T) {
	devices := []Device{{Name: "HDMI Output", OutputChannels: 8}}
	_, err := SelectDevice(devices, config.Capture{})
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestInputDevicesFilters(t *testing.T) {
	devices := []Device{
		{Name: "Speakers", OutputChannels: 2},
		{Name: "Mic A", InputChannels: 1},
		{Name: "Mic B", InputChannels: 2},
	}
	inputs := InputDevices(devices)
	if len(inputs) != 2 {
		t.Fatalf("InputDevices returned %d devices, want 2", len(inputs))
	}
	if inputs[0].Name != "Mic A" || inputs[1].Name != "Mic B" {
		t.Fatalf("unexpected ordering: %v", inputs)
	}
}
