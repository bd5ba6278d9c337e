package stage

import (
	"fmt"
	"os"
	"strings"
	"time"

	"murmur/internal/services"
)

// TimestampLayout is the clock format embedded in artifact file names so a
// clip, its transcript, its prompt, and its rendered image sort together.
const TimestampLayout = "20060102_150405"

// ArtifactName builds the canonical file name for a pipeline artifact, e.g.
// recording_20240101_120000.wav or prompt_20240101_120000.txt.
func ArtifactName(prefix string, ts time.Time, ext string) string {
	return fmt.Sprintf("%s_%s%s", prefix, ts.Format(TimestampLayout), ext)
}

// Artifact returns the inline value recorded on the queue item when present,
// falling back to reading the artifact file persisted by an earlier stage.
// On failure it returns a services.ErrValidation suitable for stage Execute methods.
func Artifact(stageName, label, value, path string) (string, error) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed, nil
	}
	if strings.TrimSpace(path) == "" {
		return "", services.Wrap(
			services.ErrValidation, stageName, "load "+label,
			label+" missing; rerun the earlier stage", nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", services.Wrap(
			services.ErrValidation, stageName, "load "+label,
			label+" file unreadable; rerun the earlier stage", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", services.Wrap(
			services.ErrValidation, stageName, "load "+label,
			label+" file is empty; rerun the earlier stage", nil)
	}
	return content, nil
}
