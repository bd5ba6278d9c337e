package transcribe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// contentMarker separates the artifact header from the transcription body.
const contentMarker = "Transcription content:"

// headerTimeLayout is the human-readable clock format in the header.
const headerTimeLayout = "2006-01-02 15:04:05"

// FormatTranscript renders the transcript artifact: two header lines naming
// the source clip and the transcription time, a blank line, the content
// marker, then the text.
func FormatTranscript(audioPath string, at time.Time, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original audio file: %s\n", filepath.Base(audioPath))
	fmt.Fprintf(&b, "Transcription time: %s\n", at.Format(headerTimeLayout))
	b.WriteString("\n")
	b.WriteString(contentMarker)
	b.WriteString("\n")
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}

// WriteTranscript persists the artifact at path.
func WriteTranscript(path, audioPath string, at time.Time, text string) error {
	return os.WriteFile(path, []byte(FormatTranscript(audioPath, at, text)), 0o644)
}

// ExtractContent returns the transcription body of an artifact, stripping
// the header when present. Content without a marker is returned whole so
// plain-text transcripts survive too.
func ExtractContent(raw string) string {
	if idx := strings.Index(raw, contentMarker); idx >= 0 {
		return strings.TrimSpace(raw[idx+len(contentMarker):])
	}
	return strings.TrimSpace(raw)
}
