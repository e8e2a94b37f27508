package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	"github.com/alexisbeaulieu97/keyglow/internal/tui"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func newDevicesCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List devices and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, ipc.ChannelInterface, func(ctx context.Context, c *ipc.Client) error {
				snap, err := c.Devices(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), snap)
				}
				return renderDevices(cmd.OutOrStdout(), snap)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func renderDevices(w io.Writer, snap model.CurrentDevices) error {
	if len(snap.Devices) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered.")
		return err
	}

	rows := make([][]string, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		rows = append(rows, []string{
			d.Name,
			d.State,
			strconv.FormatBool(d.Enabled),
			strconv.Itoa(d.ConsecutiveFailures),
			strconv.FormatFloat(d.LastUpdateMs, 'f', 1, 64),
			strconv.FormatInt(d.FramesApplied, 10),
			valueOrFallback(d.LastError, valueOrFallback(d.Info, "-")),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DEVICE", "STATE", "ENABLED", "FAILURES", "UPDATE MS", "FRAMES", "INFO").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 && row >= 0 && row < len(rows) {
				return tui.StateStyle(rows[row][1]).Padding(0, 1)
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newVarsCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "vars [device]",
		Short: "Show device variables",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return withClient(cmd, flags, ipc.ChannelInterface, func(ctx context.Context, c *ipc.Client) error {
				vars, err := c.Variables(ctx, name)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), vars)
				}
				return renderVariables(cmd.OutOrStdout(), vars)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func renderVariables(w io.Writer, devices []ipc.DeviceVariables) error {
	rows := [][]string{}
	for _, dv := range devices {
		for _, v := range dv.Variables {
			value := fmt.Sprint(v.Value)
			if v.Modified {
				value += " *"
			}
			rows = append(rows, []string{dv.Device, v.Name, string(v.Kind), value, fmt.Sprint(v.Default), v.Description})
		}
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No variables registered.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DEVICE", "NAME", "KIND", "VALUE", "DEFAULT", "DESCRIPTION").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-device operation timings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, flags, ipc.ChannelInterface, func(ctx context.Context, c *ipc.Client) error {
				stats, err := c.Stats(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), stats)
				}
				return renderStats(cmd.OutOrStdout(), stats)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func renderStats(w io.Writer, stats []instrument.Stats) error {
	if len(stats) == 0 {
		_, err := fmt.Fprintln(w, "No timings recorded yet.")
		return err
	}

	ms := func(d time.Duration) string {
		return strconv.FormatFloat(instrument.Milliseconds(d), 'f', 2, 64)
	}
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Device,
			s.Op,
			strconv.FormatInt(s.Count, 10),
			strconv.FormatInt(s.Failures, 10),
			ms(s.Last),
			ms(s.Average()),
			ms(s.Max),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DEVICE", "OP", "COUNT", "FAILURES", "LAST MS", "AVG MS", "MAX MS").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func valueOrFallback(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
