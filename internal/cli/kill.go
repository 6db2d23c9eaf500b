package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/procmux/internal/metrics"
	"github.com/Paintersrp/procmux/internal/proc"
)

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <pid>",
		Short: "Terminate a process (and, on Windows, its descendants)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid, err := strconv.Atoi(args[0])
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			err = proc.Kill(pid)
			metrics.IncKill(err)
			return err
		},
	}
}
