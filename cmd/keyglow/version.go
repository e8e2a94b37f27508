package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newVersionCmd(flags *rootFlags) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Display build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "keyglow %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
			if !remote {
				return nil
			}
			app, err := newAppContext(cmd, flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
			defer cancel()
			client, err := app.dial(ctx, ipc.ChannelInterface)
			if err != nil {
				return err
			}
			defer client.Close()
			reply, err := client.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon: %s\n", reply.Version)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Also query the running daemon")

	return cmd
}
