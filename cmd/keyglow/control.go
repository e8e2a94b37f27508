package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	"github.com/alexisbeaulieu97/keyglow/pkg/diff"
)

func newSetVarCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-var <device> <name> <value>",
		Short: "Change a device variable",
		Long: `Change a device variable. The value is read as JSON when it parses
(numbers, booleans, quoted strings) and as a plain string otherwise.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := parseValue(args[2])
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				if err := c.SetVariable(ctx, args[0], args[1], value); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %v\n", args[0], args[1], value)
				return nil
			})
		},
	}
}

func newResetVarCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-var <device> <name>",
		Short: "Restore a device variable to its default",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				return c.ResetVariable(ctx, args[0], args[1])
			})
		},
	}
}

// parseValue reads raw as JSON, falling back to the literal string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func newEnableCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "enable <device>",
		Short: "Enable and initialize a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				if err := c.EnableDevice(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s enabled\n", args[0])
				return nil
			})
		},
	}
}

func newDisableCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <device>",
		Short: "Shut a device down and keep it disabled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				if err := c.DisableDevice(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s disabled\n", args[0])
				return nil
			})
		},
	}
}

type frameOptions struct {
	keys   string
	forced bool
}

func newFrameCmd(flags *rootFlags) *cobra.Command {
	opts := &frameOptions{}

	cmd := &cobra.Command{
		Use:   "frame <color>",
		Short: "Send a solid color frame to every device",
		Example: `  keyglow frame '#ff8800'
  keyglow frame 00ff00 --keys ESC,F1,F2 --forced`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			frame, err := buildFrame(args[0], opts.keys)
			if err != nil {
				return err
			}
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				return c.SetFrame(ctx, frame, opts.forced)
			})
		},
	}

	cmd.Flags().StringVar(&opts.keys, "keys", "", "Comma-separated keys to light (default: every key)")
	cmd.Flags().BoolVar(&opts.forced, "forced", false, "Bypass device send throttling")

	return cmd
}

func buildFrame(hex, keys string) (color.KeyColorMap, error) {
	c, err := color.ParseHex(hex)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(keys) == "" {
		return color.Fill(c), nil
	}
	list, err := color.ParseKeyList(keys)
	if err != nil {
		return nil, err
	}
	frame := make(color.KeyColorMap, len(list))
	for _, k := range list {
		frame[k] = c
	}
	return frame, nil
}

func newMappingCmd(flags *rootFlags) *cobra.Command {
	var (
		file   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Show or replace the per-device key mapping",
		Long: `Without --set the current mapping is printed as YAML. With --set the
mapping is replaced by the contents of the given YAML file and the change
is shown as a line diff. --dry-run shows the diff without applying it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return withClient(cmd, flags, ipc.ChannelInterface, func(ctx context.Context, c *ipc.Client) error {
					mapping, err := c.Mapping(ctx)
					if err != nil {
						return err
					}
					return yaml.NewEncoder(cmd.OutOrStdout()).Encode(mapping)
				})
			}

			mapping, err := readMapping(file)
			if err != nil {
				return newCommandError("read mapping", file, err, "The file must map device names to KEY: KEY tables.")
			}
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				current, err := c.Mapping(ctx)
				if err != nil {
					return err
				}
				changes, err := mappingDiff(current, mapping)
				if err != nil {
					return err
				}
				if changes == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "mapping unchanged")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), changes)
				if dryRun {
					return nil
				}
				return c.SetMapping(ctx, mapping)
			})
		},
	}

	cmd.Flags().StringVar(&file, "set", "", "YAML file holding the new mapping")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the change without applying it")

	return cmd
}

func readMapping(path string) (model.DeviceMappingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mapping model.DeviceMappingConfig
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, err
	}
	return mapping, nil
}

// mappingDiff renders both mappings as YAML and diffs them line by line.
func mappingDiff(current, next model.DeviceMappingConfig) (string, error) {
	before, err := marshalMapping(current)
	if err != nil {
		return "", err
	}
	after, err := marshalMapping(next)
	if err != nil {
		return "", err
	}
	return diff.Lines(before, after, "daemon mapping", "new mapping"), nil
}

func marshalMapping(m model.DeviceMappingConfig) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return yaml.Marshal(m)
}

func newShutdownCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the daemon to shut every device down and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, ipc.ChannelControl, func(ctx context.Context, c *ipc.Client) error {
				return c.Shutdown(ctx)
			})
		},
	}
}
