package proc

// Kill terminates the process identified by pid. On Windows the descendant
// tree recorded in a process-table snapshot is terminated leaves-first before
// the target; on Unix a single SIGKILL goes to pid alone (see the package
// documentation). Any failing step aborts the operation and is returned; a
// pid that no longer exists surfaces as the platform's own error.
func Kill(pid int) error {
	return killProcess(pid)
}

// processTree maps a parent pid to its direct children, snapshotted at one
// point in time.
type processTree map[int][]int

// kill terminates pid's recorded descendants depth-first, leaves first, then
// pid itself. The first failing termination aborts the walk. Pid reuse can
// make a snapshot cyclic, so each pid is visited at most once.
func (t processTree) kill(pid int, terminate func(int) error) error {
	seen := make(map[int]bool)
	var walk func(int) error
	walk = func(target int) error {
		if seen[target] {
			return nil
		}
		seen[target] = true
		for _, child := range t[target] {
			if err := walk(child); err != nil {
				return err
			}
		}
		return terminate(target)
	}
	return walk(pid)
}
