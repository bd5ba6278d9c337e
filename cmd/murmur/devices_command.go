package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"murmur/internal/capture"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg == nil {
				return errors.New("configuration not available")
			}

			recorder := capture.NewRecorder(cfg.Capture, cfg.AudioDir())
			defer recorder.Close()

			devices, err := recorder.ListDevices()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No input devices found")
				return nil
			}

			rows := make([][]string, 0, len(devices))
			for _, device := range devices {
				systemDefault := ""
				if device.SystemDefault {
					systemDefault = "yes"
				}
				rows = append(rows, []string{
					device.Name,
					strconv.Itoa(device.InputChannels),
					fmt.Sprintf("%.0f Hz", device.DefaultSampleRate),
					systemDefault,
				})
			}
			table := renderTable(
				[]string{"Name", "Channels", "Sample Rate", "Default"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			)
			fmt.Fprintln(out, table)

			selected, err := capture.SelectDevice(devices, cfg.Capture)
			if err != nil {
				fmt.Fprintf(out, "Capture device selection: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "Capture will use: %s\n", selected.Name)
			return nil
		},
	}
}
