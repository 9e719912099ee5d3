// Package shelldrv implements the Shell Driver (spec C9): it chooses a
// subprocess invocation for a cell's language, spawns it, captures
// stdout/stderr, and emits shell:* events as it goes.
package shelldrv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/connerohnesorge/spry/internal/dagexec"
)

// Invocation is the resolved command line for one language.
type Invocation struct {
	Name string
	Args []string
}

// dispatch maps a fence language to the shell that runs its source via
// a single `-c`/`-e` style argument. The source itself is appended as
// the final argument at spawn time.
var dispatch = map[string]Invocation{
	"shell": {Name: systemShell(), Args: []string{"-c"}},
	"sh":    {Name: "sh", Args: []string{"-c"}},
	"bash":  {Name: "bash", Args: []string{"-c"}},

	"python":  {Name: "python3", Args: []string{"-c"}},
	"python3": {Name: "python3", Args: []string{"-c"}},

	"node":       {Name: "node", Args: []string{"-e"}},
	"js":         {Name: "node", Args: []string{"-e"}},
	"javascript": {Name: "node", Args: []string{"-e"}},
}

func systemShell() string {
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell
	}

	return "/bin/sh"
}

// Resolve returns the Invocation for language, or false if the
// language has no known shell driver.
func Resolve(language string) (Invocation, bool) {
	inv, ok := dispatch[language]

	return inv, ok
}

// Result is one completed subprocess run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error // non-nil only for failures to spawn at all
}

// Combined concatenates Stdout then Stderr, the shape TaskExecCapture's
// text() decodes when execution happened (spec §3).
func (r Result) Combined() []byte {
	return append(append([]byte{}, r.Stdout...), r.Stderr...)
}

// Runner is the executor abstraction, analogous to the teacher's
// GitExecutor: the real implementation shells out via os/exec, and
// tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, inv Invocation, source string, timeout time.Duration) Result
}

// RealRunner spawns subprocesses with os/exec.
type RealRunner struct{}

func (RealRunner) Run(ctx context.Context, inv Invocation, source string, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := append(append([]string{}, inv.Args...), source)
	cmd := exec.CommandContext(ctx, inv.Name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			err = nil
		} else {
			return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Err: fmt.Errorf("spawning %s: %w", inv.Name, err)}
		}
	}

	return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), ExitCode: exitCode}
}

// Driver runs cells through a Runner, emitting shell:* events on bus
// (spec §4.9). A nil bus is valid and simply emits nothing.
type Driver struct {
	Runner  Runner
	Bus     *dagexec.EventBus
	Timeout time.Duration
}

// NewDriver builds a Driver backed by RealRunner.
func NewDriver(bus *dagexec.EventBus) *Driver {
	return &Driver{Runner: RealRunner{}, Bus: bus}
}

// Run spawns source under language's invocation for taskID, emitting
// shell:start / shell:stdout / shell:stderr / shell:exit in that order
// (spec §5's task:start → shell:* → task:ok|fail ordering guarantee).
// A non-zero exit code is not itself an error — the caller's runTask
// decides whether that's a task failure (spec §4.9). timeout, when
// non-zero, overrides d.Timeout for this call — the per-task
// `--timeout` PI flag (spec §6) takes precedence over the driver's
// construction-time default.
func (d *Driver) Run(ctx context.Context, taskID, language, source string, timeout time.Duration) (Result, error) {
	inv, ok := Resolve(language)
	if !ok {
		return Result{}, fmt.Errorf("shelldrv: no driver for language %q", language)
	}

	if timeout <= 0 {
		timeout = d.Timeout
	}

	d.emit(ctx, dagexec.Event{Type: dagexec.EventShellStart, TaskID: taskID})

	result := d.Runner.Run(ctx, inv, source, timeout)

	if len(result.Stdout) > 0 {
		d.emit(ctx, dagexec.Event{Type: dagexec.EventShellOut, TaskID: taskID, Data: result.Stdout})
	}

	if len(result.Stderr) > 0 {
		d.emit(ctx, dagexec.Event{Type: dagexec.EventShellErr, TaskID: taskID, Data: result.Stderr})
	}

	d.emit(ctx, dagexec.Event{Type: dagexec.EventShellExit, TaskID: taskID, Data: result.ExitCode})

	return result, result.Err
}

func (d *Driver) emit(ctx context.Context, e dagexec.Event) {
	if d.Bus != nil {
		d.Bus.Emit(ctx, e)
	}
}
