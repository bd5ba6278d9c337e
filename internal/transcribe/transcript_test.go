package transcribe

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatTranscript(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 27, 10, 0, time.UTC)
	got := FormatTranscript("/data/audio/recording_20260314_092653.wav", at, "A quiet murmur.")

	want := "Original audio file: recording_20260314_092653.wav\n" +
		"Transcription time: 2026-03-14 09:27:10\n" +
		"\n" +
		"Transcription content:\n" +
		"A quiet murmur.\n"
	if got != want {
		t.Fatalf("transcript artifact mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestWriteTranscriptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcription_20260314_092653.txt")
	text := "First line.\nSecond line."
	if err := WriteTranscript(path, "clip.wav", time.Now(), text); err != nil {
		t.Fatalf("WriteTranscript returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if got := ExtractContent(string(data)); got != text {
		t.Fatalf("ExtractContent = %q, want %q", got, text)
	}
}

func TestExtractContentWithoutHeader(t *testing.T) {
	if got := ExtractContent("  plain words, no header  \n"); got != "plain words, no header" {
		t.Fatalf("ExtractContent = %q", got)
	}
}
