package cli

import (
	stdcontext "context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Paintersrp/procmux/internal/cliutil"
	"github.com/Paintersrp/procmux/internal/config"
	"github.com/Paintersrp/procmux/internal/event"
	"github.com/Paintersrp/procmux/internal/metrics"
	"github.com/Paintersrp/procmux/internal/mux"
)

const muxBufferSize = 256

func newRunCmd(ctx *cliContext) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "run [-- command [args...]]",
		Short: "Run processes and stream their events as JSON records",
		Long: "Run starts the procfile's processes (or the single command given after --),\n" +
			"streams every process event to stdout as one JSON record per line, and\n" +
			"terminates survivors on SIGINT/SIGTERM.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcesses(cmd, ctx, args, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runProcesses(cmd *cobra.Command, cctx *cliContext, args []string, metricsAddr string) error {
	adhoc := len(args) > 0
	var doc *config.Procfile
	if adhoc {
		doc = adhocProcfile(args)
		if err := doc.Validate(); err != nil {
			return err
		}
	} else {
		var err error
		doc, err = config.Load(*cctx.procfile)
		if err != nil {
			return err
		}
	}

	if metricsAddr != "" {
		go func() {
			handler := promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
			if err := http.ListenAndServe(metricsAddr, handler); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "metrics listener: %v\n", err)
			}
		}()
	}

	m := mux.New(muxBufferSize)
	procs, err := launch(doc, m)
	if err != nil {
		return err
	}

	// A signal kills the whole set; the mux then drains each process's
	// final events and finishes once every queue disconnects.
	go func() {
		<-cmd.Context().Done()
		killAll(procs, cmd.ErrOrStderr())
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- m.Run(stdcontext.Background())
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	exitCodes := make(map[string]int)
	for entry := range m.Output() {
		if entry.Dropped == 0 {
			metrics.IncEvent(string(entry.Event.Type))
		}
		cliutil.EncodeLogEntry(enc, cmd.ErrOrStderr(), entry)
		if entry.Event.Type == event.TypeExit && entry.Event.Status != nil {
			exitCodes[entry.Name] = entry.Event.Status.ExitCode()
		}
	}
	if err := <-runErr; err != nil {
		return err
	}

	if adhoc {
		if code, ok := exitCodes["cmd"]; ok && code != 0 {
			return fmt.Errorf("command exited with code %d", code)
		}
	}
	return nil
}
