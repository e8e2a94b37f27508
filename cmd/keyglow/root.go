package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	socketDir  string
	logLevel   string
	humanLogs  bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "keyglow",
		Short:         "keyglow drives RGB lighting devices from a single frame stream",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Daemon config file (default: search keyglow.yaml)")
	cmd.PersistentFlags().StringVar(&flags.socketDir, "socket-dir", "", "Directory holding the daemon sockets")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flags.humanLogs, "human-logs", false, "Force human-readable logs")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newDevicesCmd(flags))
	cmd.AddCommand(newStatsCmd(flags))
	cmd.AddCommand(newVarsCmd(flags))
	cmd.AddCommand(newSetVarCmd(flags))
	cmd.AddCommand(newResetVarCmd(flags))
	cmd.AddCommand(newEnableCmd(flags))
	cmd.AddCommand(newDisableCmd(flags))
	cmd.AddCommand(newFrameCmd(flags))
	cmd.AddCommand(newMappingCmd(flags))
	cmd.AddCommand(newWatchCmd(flags))
	cmd.AddCommand(newShutdownCmd(flags))
	cmd.AddCommand(newVersionCmd(flags))

	return cmd
}
