// Package runner runs the JabRef executable and captures what it prints.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned, wrapped, when a command runs past its timeout.
var ErrTimeout = errors.New("command timed out")

// Command describes one invocation.  Args are passed to the program as they
// are, without any shell in between.
type Command struct {
	Path string
	Args []string
	// Env is added to the host's own environment.
	Env []string
	// Timeout of zero means no timeout.
	Timeout time.Duration
}

// Result is the outcome of running a Command.
type Result struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	// Output is stdout and stderr, interleaved as the program wrote them.
	Output *bytes.Buffer
	Err    error
}

// OK reports whether the program ran and exited with status 0.
func (r Result) OK() bool {
	return r.Err == nil
}

// ExitCode returns the exit code, or -1 if the program did not exit
// normally.
func (r Result) ExitCode() int {
	if r.State == nil {
		return -1
	}
	return r.State.ExitCode()
}

// Text returns the captured output, or the error if nothing was captured.
func (r Result) Text() string {
	if r.Output != nil {
		if s := strings.TrimRight(r.Output.String(), "\r\n"); s != "" {
			return s
		}
	}
	if r.Err != nil {
		return r.Err.Error()
	}
	return ""
}

// Exec runs commands with os/exec.
type Exec struct{}

// Run starts the command, waits for it to finish and returns the result.  It
// never returns a nil Output.
func (Exec) Run(ctx context.Context, c Command) Result {
	r := Result{
		Path:   c.Path,
		Args:   append([]string(nil), c.Args...),
		Output: &bytes.Buffer{},
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	// The host's stdin carries the browser protocol; the child must not
	// read from it.
	cmd.Stdin = nil
	cmd.Stdout = r.Output
	cmd.Stderr = r.Output
	if c.Timeout > 0 {
		// Grandchildren holding the output pipe must not outlive the timeout.
		cmd.WaitDelay = time.Second
	}

	r.Started = time.Now().UTC()
	err := cmd.Run()
	r.Stopped = time.Now().UTC()
	r.State = cmd.ProcessState

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %v", ErrTimeout, c.Timeout, err)
	}
	r.Err = err
	return r
}
