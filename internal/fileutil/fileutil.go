// Package fileutil checks artifact directory readiness: access rights and
// remaining filesystem capacity. The daemon logs these at startup and the
// CLI status view renders them, so a full disk or a read-only mount shows
// up before the capture loop starts failing.
package fileutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// DirStatus reports the readiness of one artifact directory.
type DirStatus struct {
	Path      string
	Exists    bool
	Writable  bool
	FreeBytes uint64
	Detail    string
}

// CheckDir inspects a directory for existence, read/write access, and
// remaining capacity on its filesystem.
func CheckDir(path string) DirStatus {
	status := DirStatus{Path: path}
	if path == "" {
		status.Detail = "not configured"
		return status
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			status.Detail = "does not exist"
			return status
		}
		status.Detail = fmt.Sprintf("stat: %v", err)
		return status
	}
	status.Exists = true
	if !info.IsDir() {
		status.Detail = "is not a directory"
		return status
	}

	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		status.Detail = fmt.Sprintf("insufficient permissions: %v", err)
		return status
	}
	status.Writable = true

	free, err := FreeSpace(path)
	if err != nil {
		status.Detail = fmt.Sprintf("free space unavailable: %v", err)
		return status
	}
	status.FreeBytes = free
	status.Detail = fmt.Sprintf("%s free", FormatBytes(free))
	return status
}

// FreeSpace returns the bytes available to unprivileged writers on the
// filesystem containing path.
func FreeSpace(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

// FormatBytes renders a byte count using binary units.
func FormatBytes(size uint64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	value := float64(size)
	suffixes := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	idx := -1
	for value >= unit && idx < len(suffixes)-1 {
		value /= unit
		idx++
	}
	return fmt.Sprintf("%.1f %s", value, suffixes[idx])
}
