// Package proc turns a spawned child process into a non-blocking source of
// events. Each attached process runs one background goroutine per captured
// output stream plus one goroutine that waits for termination; all of them
// feed a single queue whose receiving end the Process handle owns. A process
// with both output streams captured therefore costs three goroutines, and one
// with nothing captured still costs exactly one.
//
// Full process-tree termination is only performed on Windows, where Kill
// snapshots the process table and terminates descendants leaves-first before
// the target. On Unix platforms Kill delivers a single SIGKILL to the target
// pid alone: descendants are not enumerated, and any grandchildren keep
// running until cleaned up separately by the caller.
package proc
