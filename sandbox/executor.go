// Package sandbox runs untrusted grader and submission processes inside a
// scratch working directory under OS resource limits. Every child gets its
// own process group so runaway descendants (fork bombs included) can be
// terminated as a unit, a wall-clock watchdog with the conventional 124
// retcode sentinel, rlimits on CPU time, address space, processes and open
// files, a scrubbed environment, and byte-capped output capture.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sharedcode/grader"
)

// WallTimeoutRetcode is the sentinel exit code reported when the wall-clock
// watchdog killed the process group. Same convention as timeout(1).
const WallTimeoutRetcode = 124

// DefaultGrace is how long after SIGTERM the process group gets before SIGKILL.
const DefaultGrace = time.Second

// DefaultOutputCap bounds each captured stream.
const DefaultOutputCap = 64 * 1024

// Command describes one sandboxed process execution.
type Command struct {
	// Argv is the command vector; Argv[0] resolves via PATH.
	Argv []string
	// Dir is the sandbox working directory. Must already exist.
	Dir string
	// Stdin optionally feeds the child's standard input.
	Stdin io.Reader
	// Limits are the OS resource limits applied before the child runs user code.
	Limits grader.SandboxLimits
	// CaptureOutput collects stdout/stderr up to OutputCap bytes each.
	CaptureOutput bool
	// OutputCap overrides DefaultOutputCap when > 0.
	OutputCap int
	// Grace overrides DefaultGrace when > 0.
	Grace time.Duration
}

// Result is the outcome of a sandboxed execution.
type Result struct {
	Retcode int
	Stdout  string
	Stderr  string
	// TimedOut marks a wall-clock watchdog kill; Retcode is then 124.
	TimedOut bool
	// KilledBy names the signal that ended the process, when one did.
	KilledBy string
	// Truncated marks that at least one stream hit the output cap.
	Truncated bool
}

// scrubEnv builds the minimal child environment.
func scrubEnv(workdir string) []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + workdir,
		"LANG=" + os.Getenv("LANG"),
	}
}

// Execute runs the command to completion under the sandbox contract and
// returns its Result. Spawn problems return a SpawnFailed coded error; a
// child that ran and failed is not an error here, its Retcode tells.
func Execute(ctx context.Context, c Command) (Result, error) {
	var r Result
	if len(c.Argv) == 0 {
		return r, grader.Error{Code: grader.SpawnFailed, Err: errors.New("empty command vector")}
	}
	grace := c.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}
	outputCap := c.OutputCap
	if outputCap <= 0 {
		outputCap = DefaultOutputCap
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.Env = scrubEnv(c.Dir)
	// Own process group so the kill path reaches every descendant.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Don't let an orphaned grandchild holding our pipes block Wait forever.
	cmd.WaitDelay = grace

	var stdout, stderr *cappedWriter
	if c.CaptureOutput {
		stdout = newCappedWriter(outputCap)
		stderr = newCappedWriter(outputCap)
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	if err := cmd.Start(); err != nil {
		return r, grader.Error{Code: grader.SpawnFailed, Err: err, UserData: c.Argv[0]}
	}
	pid := cmd.Process.Pid
	applyRlimits(pid, c.Limits)

	// Wall-clock watchdog. Cancellation rides the same kill path.
	wall := c.Limits.Wall()
	if wall <= 0 {
		wall = time.Hour
	}
	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	timedOut := make(chan bool, 1)
	go func() {
		t := time.NewTimer(wall)
		defer t.Stop()
		select {
		case <-t.C:
			timedOut <- true
			killGroup(pid, grace)
		case <-watchdogCtx.Done():
			if watchdogCtx.Err() == context.Canceled && ctx.Err() != nil {
				// Caller cancellation, not normal exit.
				killGroup(pid, grace)
			}
			timedOut <- false
		}
	}()

	waitErr := cmd.Wait()
	stopWatchdog()
	r.TimedOut = <-timedOut

	// Reap any process-group stragglers the child left behind.
	_ = unix.Kill(-pid, unix.SIGKILL)

	if c.CaptureOutput {
		r.Stdout = stdout.String()
		r.Stderr = stderr.String()
		r.Truncated = stdout.Truncated() || stderr.Truncated()
	}

	r.Retcode, r.KilledBy = decodeWait(cmd, waitErr)
	if r.TimedOut {
		r.Retcode = WallTimeoutRetcode
	}
	if waitErr != nil && r.Retcode == 0 {
		// Wait failed for a non-exit reason (I/O plumbing).
		return r, grader.Error{Code: grader.FileIOError, Err: waitErr}
	}
	log.Debug("sandbox execution finished", "argv0", c.Argv[0], "retcode", r.Retcode,
		"timed_out", r.TimedOut, "killed_by", r.KilledBy)
	return r, nil
}

// applyRlimits sets the resource limits on the freshly started child. The
// child has not exec'd user code yet at this point in practice; a child that
// already exited just makes these calls fail harmlessly.
func applyRlimits(pid int, l grader.SandboxLimits) {
	set := func(resource int, v uint64) {
		if v == 0 {
			return
		}
		lim := unix.Rlimit{Cur: v, Max: v}
		if err := unix.Prlimit(pid, resource, &lim, nil); err != nil {
			log.Warn("prlimit failed", "pid", pid, "resource", resource, "err", err)
		}
	}
	set(unix.RLIMIT_CPU, uint64(l.CPUSeconds))
	set(unix.RLIMIT_AS, uint64(l.MemoryBytes))
	set(unix.RLIMIT_NPROC, uint64(l.Processes))
	set(unix.RLIMIT_NOFILE, uint64(l.OpenFiles))
}

// killGroup terminates the whole process group: SIGTERM first, SIGKILL after
// the grace period. Fork bombs don't outlive the grace window.
func killGroup(pid int, grace time.Duration) {
	_ = unix.Kill(-pid, unix.SIGTERM)
	time.AfterFunc(grace, func() {
		_ = unix.Kill(-pid, unix.SIGKILL)
	})
}

// decodeWait turns Wait's error into a retcode + terminating signal name.
func decodeWait(cmd *exec.Cmd, waitErr error) (int, string) {
	if waitErr == nil {
		return 0, ""
	}
	var ee *exec.ExitError
	if errors.As(waitErr, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			// Shell convention for signal deaths.
			return 128 + int(ws.Signal()), ws.Signal().String()
		}
		return ee.ExitCode(), ""
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), ""
	}
	return 0, ""
}

// String representation of the limits, for run output headers.
func LimitsString(l grader.SandboxLimits) string {
	return fmt.Sprintf("cpu=%ds mem=%d procs=%d fds=%d wall=%ds",
		l.CPUSeconds, l.MemoryBytes, l.Processes, l.OpenFiles, l.WallSeconds)
}
