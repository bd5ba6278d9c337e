package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logPath := filepath.Join(cfg.LogDir(), "murmur-current.log")

			tail, offset, err := tailLines(logPath, lines)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(cmd.OutOrStdout(), "No log file found; start the daemon with `murmur start` first")
					return nil
				}
				return fmt.Errorf("read log %s: %w", logPath, err)
			}

			out := cmd.OutOrStdout()
			if len(tail) == 0 && !follow {
				fmt.Fprintln(out, "No log entries available")
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}

			if !follow {
				return nil
			}
			return followLog(cmd, logPath, offset)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 100, "Number of trailing log lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new log lines as they arrive")
	return cmd
}

func tailLines(path string, n int) ([]string, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, int64(len(data)), nil
	}
	lines := strings.Split(text, "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, int64(len(data)), nil
}

// followLog polls the log pointer for growth. A shrinking size means the
// daemon restarted and the pointer now names a fresh run log, so reading
// starts over from the top.
func followLog(cmd *cobra.Command, path string, offset int64) error {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}

		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("stat log %s: %w", path, err)
		}
		if info.Size() < offset {
			offset = 0
		}
		if info.Size() == offset {
			continue
		}

		chunk, err := readLogFrom(path, offset)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			continue
		}
		if _, err := out.Write(chunk); err != nil {
			return err
		}
		offset += int64(len(chunk))
	}
}

func readLogFrom(path string, offset int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek log %s: %w", path, err)
	}
	data, err := io.ReadAll(file)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}
	return data, nil
}
