//go:build !windows

package proc

import (
	"fmt"
	"syscall"
)

// killProcess sends an unconditional SIGKILL to pid. Descendants are not
// enumerated on Unix: children of the target keep running unless the caller
// manages them through other means.
func killProcess(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}
