package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/daemonctl"
	"murmur/internal/daemonrun"
	"murmur/internal/ipc"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startForeground bool
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the murmur daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if startForeground {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
					SocketPath: flagSocket(ctx),
				})
			}

			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonLaunchOptions(ctx),
				10*time.Second,
			)
			if err != nil {
				return err
			}

			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Daemon started")
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			case daemonctl.StartStateStalled:
				return errors.New(result.Message)
			}
			return nil
		},
	}
	startCmd.Flags().BoolVar(&startForeground, "foreground", false, "Run the daemon in this terminal instead of launching a background process")

	var stopNow bool
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the murmur daemon",
		Long:  "Stop the murmur daemon. Queued clips finish processing before shutdown; --now interrupts them instead (interrupted clips resume on the next start).",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			drain := !stopNow
			grace := 30 * time.Second
			if stopNow {
				grace = 5 * time.Second
			}
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), drain, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.Draining {
				fmt.Fprintln(stdout, "Draining queued clips before shutdown...")
			}
			if result.StillDraining {
				fmt.Fprintln(stdout, "Daemon is still draining; watch `murmur status` for progress or rerun with --now")
				return nil
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}
	stopCmd.Flags().BoolVar(&stopNow, "now", false, "Stop immediately without draining queued clips")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("System Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonctl.BuildSystemChecks(cfg, statusResp.Running, statusResp.Draining) {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}
			if statusResp.LastError != "" {
				fmt.Fprintln(stdout, renderStatusLine("Last Error", statusWarn, truncateDetail(statusResp.LastError, 80), colorize))
			}
			if item := statusResp.LastItem; item != nil {
				detail := fmt.Sprintf("#%d %s (%s)", item.ID, clipLabel(*item), formatStatusLabel(item.Status))
				fmt.Fprintln(stdout, renderStatusLine("Last Clip", statusInfo, detail, colorize))
			}
			fmt.Fprintln(stdout)

			if len(statusResp.StageHealth) > 0 {
				for _, line := range renderSectionHeader("Stages", colorize) {
					fmt.Fprintln(stdout, line)
				}
				for _, line := range stageHealthLines(statusResp.StageHealth, colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout)
			}

			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range dependencyLines(statusResp.Dependencies, colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Artifact Paths", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, line := range daemonctl.BuildArtifactPathChecks(cfg) {
				fmt.Fprintln(stdout, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Queue Status", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildQueueStatusRows(statusResp.QueueStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "Queue is empty")
				return nil
			}
			table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func stageHealthLines(stages []ipc.StageHealth, colorize bool) []string {
	lines := make([]string, 0, len(stages))
	for _, health := range stages {
		detail := strings.TrimSpace(health.Detail)
		if health.Ready {
			if detail == "" {
				detail = "Ready"
			}
			lines = append(lines, renderStatusLine(formatStatusLabel(health.Name), statusOK, detail, colorize))
			continue
		}
		if detail == "" {
			detail = "not ready"
		}
		lines = append(lines, renderStatusLine(formatStatusLabel(health.Name), statusWarn, detail, colorize))
	}
	return lines
}

func dependencyLines(dependencies []ipc.DependencyStatus, colorize bool) []string {
	summary := daemonctl.BuildDependencySummary(dependencies)
	lines := make([]string, 0, len(dependencies)+2)
	lines = append(lines, renderStatusLine("Summary", statusKindFromSeverity(summary.Severity), summary.Detail, colorize))
	missing := make([]string, 0)
	for _, dep := range dependencies {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}

		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
		missing = append(missing, dep.Name)
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusWarn, strings.Join(missing, ", "), colorize))
	}
	return lines
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: flagSocket(ctx),
		ConfigPath: ctx.configPathValue(),
	}
}

// flagSocket returns the socket path only when the user set one explicitly,
// so the daemon process can fall back to its own default.
func flagSocket(ctx *commandContext) string {
	if ctx.socketFlag == nil {
		return ""
	}
	return strings.TrimSpace(*ctx.socketFlag)
}
