package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/keyglow/internal/config"
	"github.com/alexisbeaulieu97/keyglow/internal/ipc"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
)

// requestTimeout bounds a single CLI request to the daemon.
const requestTimeout = 15 * time.Second

// AppContext bundles what a command needs after flags are parsed.
type AppContext struct {
	Config *config.Daemon
	Logger *logger.Logger
}

func newAppContext(cmd *cobra.Command, flags *rootFlags) (*AppContext, error) {
	v := config.NewViper(flags.configPath)
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, newCommandError("load configuration", "binding flags", err, "Check the flag values and try again.")
	}
	cfg, err := config.LoadDaemon(v)
	if err != nil {
		return nil, newCommandError("load configuration", "reading keyglow.yaml", err, "Fix the configuration errors shown above and try again.")
	}

	log, err := logger.New(logger.Options{
		Level:         cfg.LogLevel,
		HumanReadable: cfg.HumanLogs || isTerminal(cmd.ErrOrStderr()),
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return &AppContext{Config: cfg, Logger: log}, nil
}

// dial connects to the running daemon. Read-only commands use the
// interface channel.
func (a *AppContext) dial(ctx context.Context, ch ipc.Channel) (*ipc.Client, error) {
	client, err := ipc.Dial(ctx, a.Config.SocketDir, ch)
	if err != nil {
		return nil, newCommandError("reach the daemon", ipc.SocketPath(a.Config.SocketDir, ch), err, "Start it with 'keyglow serve' or pass --socket-dir.")
	}
	return client, nil
}

// withClient runs fn against a fresh connection bounded by requestTimeout.
func withClient(cmd *cobra.Command, flags *rootFlags, ch ipc.Channel, fn func(ctx context.Context, c *ipc.Client) error) error {
	app, err := newAppContext(cmd, flags)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()

	client, err := app.dial(ctx, ch)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

func isTerminal(w io.Writer) bool {
	if file, ok := w.(*os.File); ok {
		return term.IsTerminal(int(file.Fd()))
	}
	return false
}

func newCommandError(operation, context string, cause error, suggestion string) error {
	return &commandError{operation: operation, context: context, cause: cause, suggestion: suggestion}
}

type commandError struct {
	operation  string
	context    string
	cause      error
	suggestion string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("Failed to %s: %s\n\nError: %v\n\nSuggestion: %s", e.operation, e.context, e.cause, e.suggestion)
}

func (e *commandError) Unwrap() error {
	return e.cause
}
