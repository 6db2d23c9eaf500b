//go:build windows

package proc

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// killProcess terminates pid and every descendant recorded in a single
// snapshot of the process table. Children spawned after the snapshot are not
// seen.
func killProcess(pid int) error {
	tree, err := snapshotProcessTree()
	if err != nil {
		return fmt.Errorf("snapshot process table: %w", err)
	}
	return tree.kill(pid, terminateOne)
}

func snapshotProcessTree() (processTree, error) {
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snapshot)

	tree := make(processTree)
	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))
	if err := windows.Process32First(snapshot, &entry); err != nil {
		return nil, err
	}
	for {
		parent := int(entry.ParentProcessID)
		tree[parent] = append(tree[parent], int(entry.ProcessID))
		if err := windows.Process32Next(snapshot, &entry); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, err
		}
	}
	return tree, nil
}

func terminateOne(pid int) error {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if err != nil {
		return fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(handle)
	if err := windows.TerminateProcess(handle, 1); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}
