package cli

import (
	stdcontext "context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/procmux/internal/config"
	"github.com/Paintersrp/procmux/internal/metrics"
	"github.com/Paintersrp/procmux/internal/mux"
	"github.com/Paintersrp/procmux/internal/tui"
)

func newTuiCmd(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Launch the interactive process viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !supportsInteractiveOutput() {
				return fmt.Errorf("tui requires an interactive terminal")
			}

			doc, err := config.Load(*ctx.procfile)
			if err != nil {
				return err
			}

			m := mux.New(muxBufferSize)
			procs, err := launch(doc, m)
			if err != nil {
				return err
			}

			go func() {
				_ = m.Run(stdcontext.Background())
			}()

			ui := tui.New()
			go func() {
				for entry := range m.Output() {
					if entry.Dropped == 0 {
						metrics.IncEvent(string(entry.Event.Type))
					}
					ui.Submit(entry)
				}
				ui.CloseEntries()
			}()

			err = ui.Run(cmd.Context())

			// Quitting the viewer must not leave orphans behind.
			killAll(procs, cmd.ErrOrStderr())
			return err
		},
	}
}

func supportsInteractiveOutput() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
