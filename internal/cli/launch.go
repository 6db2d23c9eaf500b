package cli

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/Paintersrp/procmux/internal/config"
	"github.com/Paintersrp/procmux/internal/metrics"
	"github.com/Paintersrp/procmux/internal/mux"
	"github.com/Paintersrp/procmux/internal/proc"
)

type launched struct {
	name string
	proc *proc.Process
}

// launch starts every process in doc and wires its events into m. On any
// failure the already-started processes are killed before returning.
func launch(doc *config.Procfile, m *mux.Mux) ([]launched, error) {
	var procs []launched
	for _, name := range doc.Names() {
		spec := doc.Processes[name]
		capture := proc.Capture{
			Stdin:  spec.Stdin,
			Stdout: spec.CaptureStdout(),
			Stderr: spec.CaptureStderr(),
		}
		p, err := proc.Start(buildCommand(spec), capture)
		if err != nil {
			killAll(procs, io.Discard)
			return nil, fmt.Errorf("start %s: %w", name, err)
		}
		metrics.IncProcessStarted()
		if err := m.Add(name, p.PID(), p.Events()); err != nil {
			killAll(append(procs, launched{name: name, proc: p}), io.Discard)
			return nil, err
		}
		procs = append(procs, launched{name: name, proc: p})
	}
	return procs, nil
}

func buildCommand(spec *config.ProcessSpec) *exec.Cmd {
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.ResolvedWorkdir != "" {
		cmd.Dir = spec.ResolvedWorkdir
	}
	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = env
	return cmd
}

// killAll force-terminates every launched process, reporting failures to w.
// A process that already exited surfaces a "no such process" style error,
// which is expected during shutdown and only logged.
func killAll(procs []launched, w io.Writer) {
	for _, lp := range procs {
		err := lp.proc.Kill()
		metrics.IncKill(err)
		if err != nil {
			fmt.Fprintf(w, "kill %s (pid %d): %v\n", lp.name, lp.proc.PID(), err)
		}
	}
}

// adhocProcfile wraps a raw argv in a single-process document.
func adhocProcfile(args []string) *config.Procfile {
	return &config.Procfile{
		Processes: map[string]*config.ProcessSpec{
			"cmd": {Command: args},
		},
	}
}
