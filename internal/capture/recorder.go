package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/services"
	"murmur/internal/stage"
)

// Stream delivers interleaved float32 chunks from an open input device.
type Stream interface {
	Read() ([]float32, error)
	Close() error
}

// Backend abstracts the audio host API so the recorder can be exercised
// without hardware.
type Backend interface {
	Devices() ([]Device, error)
	Open(device Device, channels, sampleRate int) (Stream, error)
	Close() error
}

// Clip describes one recorded artifact on disk.
type Clip struct {
	Path       string
	Device     string
	CapturedAt time.Time
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Recorder records fixed-length clips into the audio directory.
type Recorder struct {
	cfg      config.Capture
	audioDir string
	backend  Backend
	logger   *slog.Logger
	now      func() time.Time
}

// Option adjusts recorder construction.
type Option func(*Recorder)

// WithBackend replaces the audio host backend.
func WithBackend(backend Backend) Option {
	return func(r *Recorder) { r.backend = backend }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source used for artifact naming.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder builds a recorder writing clips into audioDir.
func NewRecorder(cfg config.Capture, audioDir string, opts ...Option) *Recorder {
	recorder := &Recorder{
		cfg:      cfg,
		audioDir: audioDir,
		backend:  newPortaudioBackend(),
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(recorder)
	}
	return recorder
}

// ListDevices enumerates the input-capable devices.
func (r *Recorder) ListDevices() ([]Device, error) {
	devices, err := r.backend.Devices()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "capture", "list devices", "", err)
	}
	return InputDevices(devices), nil
}

// Record captures one clip of the configured length and writes it as a
// WAV artifact. Cancelling the context between reads abandons the clip
// without leaving a file behind.
func (r *Recorder) Record(ctx context.Context) (*Clip, error) {
	if r.cfg.ClipSeconds <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "capture", "record",
			fmt.Sprintf("clip length %ds is not recordable", r.cfg.ClipSeconds), nil)
	}

	devices, err := r.backend.Devices()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "capture", "record", "enumerate devices", err)
	}
	device, err := SelectDevice(devices, r.cfg)
	if err != nil {
		return nil, err
	}

	sampleRate := r.cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = int(device.DefaultSampleRate)
	}
	if sampleRate <= 0 {
		return nil, services.Wrap(services.ErrExternalTool, "capture", "record",
			fmt.Sprintf("device %q reports no usable sample rate", device.Name), nil)
	}
	channels := r.cfg.Channels
	if channels <= 0 {
		channels = 1
	}
	if device.InputChannels < channels {
		r.logger.Warn("capture device has fewer input channels than configured",
			logging.String(logging.FieldDevice, device.Name),
			logging.Int("configured_channels", channels),
			logging.Int("device_channels", device.InputChannels))
		channels = device.InputChannels
	}

	r.logger.Debug("input device selected",
		logging.String(logging.FieldDevice, device.Name),
		logging.Int("sample_rate", sampleRate),
		logging.Int("channels", channels),
		logging.Bool("system_default", device.SystemDefault))

	capturedAt := r.now()
	samples, err := r.monitor(ctx, device, channels, sampleRate)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(r.audioDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "capture", "record", "create audio directory", err)
	}
	path := filepath.Join(r.audioDir, stage.ArtifactName("recording", capturedAt, ".wav"))
	if err := WriteWAV(path, samples, sampleRate, channels); err != nil {
		return nil, services.Wrap(services.ErrTransient, "capture", "record", "save clip", err)
	}

	clip := &Clip{
		Path:       path,
		Device:     device.Name,
		CapturedAt: capturedAt,
		SampleRate: sampleRate,
		Channels:   channels,
		Duration:   time.Duration(r.cfg.ClipSeconds) * time.Second,
	}
	r.logger.Info("clip captured",
		logging.String(logging.FieldDevice, device.Name),
		logging.String("path", path),
		logging.Duration("clip_length", clip.Duration))
	return clip, nil
}

// Close releases the audio host API.
func (r *Recorder) Close() error {
	return r.backend.Close()
}

// monitor pulls chunks off the device until the clip is filled. The host
// read call blocks without honoring cancellation, so the context is
// checked between chunks.
func (r *Recorder) monitor(ctx context.Context, device Device, channels, sampleRate int) ([]float32, error) {
	stream, err := r.backend.Open(device, channels, sampleRate)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "capture", "record",
			fmt.Sprintf("open device %q", device.Name), err)
	}
	defer stream.Close()

	target := sampleRate * channels * r.cfg.ClipSeconds
	samples := make([]float32, 0, target)
	for len(samples) < target {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		chunk, err := stream.Read()
		if err != nil {
			return nil, services.Wrap(services.ErrTransient, "capture", "record", "read stream", err)
		}
		if len(chunk) == 0 {
			return nil, services.Wrap(services.ErrEmptyResult, "capture", "record", "no audio data captured", nil)
		}
		samples = append(samples, chunk...)
	}
	return samples[:target], nil
}
