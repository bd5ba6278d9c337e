package capture

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// framesPerChunk is the blocking read granularity. Larger chunks mean
// fewer wakeups over a long ambient clip; cancellation latency stays
// under framesPerChunk/rate seconds.
const framesPerChunk = 1024

// portaudioBackend drives real hardware through the PortAudio host API.
// The library is initialized lazily on first use and torn down by Close.
type portaudioBackend struct {
	initOnce sync.Once
	initErr  error

	mu     sync.Mutex
	active bool
}

func newPortaudioBackend() *portaudioBackend {
	return &portaudioBackend{}
}

func (b *portaudioBackend) ensureInit() error {
	b.initOnce.Do(func() {
		if err := portaudio.Initialize(); err != nil {
			b.initErr = err
			return
		}
		b.mu.Lock()
		b.active = true
		b.mu.Unlock()
	})
	return b.initErr
}

func (b *portaudioBackend) Devices() ([]Device, error) {
	if err := b.ensureInit(); err != nil {
		return nil, err
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	defaultInput, _ := portaudio.DefaultInputDevice()

	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			Name:              info.Name,
			InputChannels:     info.MaxInputChannels,
			OutputChannels:    info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			SystemDefault:     defaultInput != nil && info == defaultInput,
		})
	}
	return devices, nil
}

func (b *portaudioBackend) Open(device Device, channels, sampleRate int) (Stream, error) {
	if err := b.ensureInit(); err != nil {
		return nil, err
	}
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	var target *portaudio.DeviceInfo
	for _, info := range infos {
		if info != nil && info.Name == device.Name {
			target = info
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("device %q disappeared", device.Name)
	}

	buffer := make([]float32, framesPerChunk*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   target,
			Channels: channels,
			Latency:  target.DefaultLowInputLatency,
		},
		SampleRate:      float64(sampleRate),
		FramesPerBuffer: framesPerChunk,
	}, buffer)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}
	return &portaudioStream{stream: stream, buffer: buffer}, nil
}

func (b *portaudioBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return nil
	}
	b.active = false
	return portaudio.Terminate()
}

// portaudioStream adapts the fixed-buffer blocking read API: each Read
// fills the buffer registered at open time and hands back a copy.
type portaudioStream struct {
	stream *portaudio.Stream
	buffer []float32
}

func (s *portaudioStream) Read() ([]float32, error) {
	if err := s.stream.Read(); err != nil {
		return nil, err
	}
	chunk := make([]float32, len(s.buffer))
	copy(chunk, s.buffer)
	return chunk, nil
}

func (s *portaudioStream) Close() error {
	s.stream.Stop()
	return s.stream.Close()
}
