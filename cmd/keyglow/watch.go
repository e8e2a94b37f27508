package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/tui"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var (
		interval time.Duration
		readOnly bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Launch the live device monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd, flags)
			if err != nil {
				return err
			}

			ch := ipc.ChannelControl
			if readOnly {
				ch = ipc.ChannelInterface
			}
			dialCtx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			client, err := app.dial(dialCtx, ch)
			cancel()
			if err != nil {
				return err
			}
			defer client.Close()

			p := tea.NewProgram(tui.NewModel(client, interval, readOnly), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("failed to run monitor: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", tui.DefaultInterval, "Polling interval")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Use the interface channel and disable toggles")

	return cmd
}
