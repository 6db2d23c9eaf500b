// Package config loads procfile documents describing the processes the CLI
// launches and observes.
package config

import (
	"fmt"
	"regexp"
	"sort"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Procfile is the root document of a procfile manifest.
type Procfile struct {
	Processes map[string]*ProcessSpec `yaml:"processes"`
}

// ProcessSpec describes one process to launch. Stdout and stderr capture
// default to true; stdin capture defaults to false.
type ProcessSpec struct {
	Command     []string          `yaml:"command"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Stdin       bool              `yaml:"stdin"`
	Stdout      *bool             `yaml:"stdout"`
	Stderr      *bool             `yaml:"stderr"`

	// ResolvedWorkdir is the workdir resolved against the procfile's
	// directory; populated by Load.
	ResolvedWorkdir string `yaml:"-"`
}

// CaptureStdout reports whether the process's stdout should be piped.
func (s *ProcessSpec) CaptureStdout() bool { return s.Stdout == nil || *s.Stdout }

// CaptureStderr reports whether the process's stderr should be piped.
func (s *ProcessSpec) CaptureStderr() bool { return s.Stderr == nil || *s.Stderr }

// Names returns the process names in deterministic order.
func (p *Procfile) Names() []string {
	names := make([]string, 0, len(p.Processes))
	for name := range p.Processes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks structural constraints that the YAML decoder cannot.
func (p *Procfile) Validate() error {
	if len(p.Processes) == 0 {
		return fmt.Errorf("procfile defines no processes")
	}
	for _, name := range p.Names() {
		spec := p.Processes[name]
		if !namePattern.MatchString(name) {
			return fmt.Errorf("process %q: invalid name", name)
		}
		if spec == nil {
			return fmt.Errorf("process %q: empty definition", name)
		}
		if len(spec.Command) == 0 {
			return fmt.Errorf("process %q: command is required", name)
		}
		if spec.Command[0] == "" {
			return fmt.Errorf("process %q: command executable is empty", name)
		}
	}
	return nil
}
