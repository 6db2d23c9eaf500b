// Package cli implements the procmux command-line interface.
package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRootCmd constructs the procmux root command.
func NewRootCmd() *cobra.Command {
	var procfile string

	root := &cobra.Command{
		Use:   "procmux",
		Short: "Run child processes as a non-blocking event stream",
	}

	root.PersistentFlags().
		StringVarP(&procfile, "file", "f", "procfile.yaml", "Path to procfile definition")

	ctx := &cliContext{procfile: &procfile}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newKillCmd())
	root.AddCommand(newTuiCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cliContext struct {
	procfile *string
}
