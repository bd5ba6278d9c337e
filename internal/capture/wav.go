package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"murmur/internal/services"
)

const (
	wavHeaderSize    = 44
	wavFmtChunkSize  = 16
	wavFormatPCM     = 1
	wavBitsPerSample = 16
	wavBytesPerSamp  = wavBitsPerSample / 8
)

// wavHeader is the canonical RIFF/fmt/data layout for 16-bit PCM. All
// fields are little-endian on the wire.
type wavHeader struct {
	RiffMark      [4]byte
	FileSize      uint32
	WaveMark      [4]byte
	FmtMark       [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	DataMark      [4]byte
	DataSize      uint32
}

// EncodeWAV writes interleaved float32 samples as a 16-bit PCM WAV
// stream. Samples outside [-1, 1] are clamped rather than wrapped.
func EncodeWAV(w io.Writer, samples []float32, sampleRate, channels int) error {
	if sampleRate <= 0 || channels <= 0 {
		return services.Wrap(services.ErrValidation, "capture", "encode",
			fmt.Sprintf("invalid wav parameters: rate %d, channels %d", sampleRate, channels), nil)
	}

	dataSize := uint32(len(samples) * wavBytesPerSamp)
	header := wavHeader{
		RiffMark:      [4]byte{'R', 'I', 'F', 'F'},
		FileSize:      uint32(wavHeaderSize-8) + dataSize,
		WaveMark:      [4]byte{'W', 'A', 'V', 'E'},
		FmtMark:       [4]byte{'f', 'm', 't', ' '},
		FmtSize:       wavFmtChunkSize,
		AudioFormat:   wavFormatPCM,
		Channels:      uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * wavBytesPerSamp),
		BlockAlign:    uint16(channels * wavBytesPerSamp),
		BitsPerSample: wavBitsPerSample,
		DataMark:      [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	pcm := make([]byte, len(samples)*wavBytesPerSamp)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcm[i*wavBytesPerSamp:], uint16(pcmSample(sample)))
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// WriteWAV encodes the samples into a file at path.
func WriteWAV(path string, samples []float32, sampleRate, channels int) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav file: %w", err)
	}
	if err := EncodeWAV(file, samples, sampleRate, channels); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close wav file: %w", err)
	}
	return nil
}

func pcmSample(sample float32) int16 {
	scaled := sample * 32767
	switch {
	case scaled > 32767:
		return 32767
	case scaled < -32768:
		return -32768
	default:
		return int16(scaled)
	}
}
