// Package procutil wraps subprocess invocation for the two external
// programs the driver shells out to: the compiler that builds the target,
// and the debugger itself. It is POSIX-only, since the session driver only
// ever runs against a pty-backed debugger.
package procutil

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/go-errors/errors"
	"github.com/jesseduffield/kill"
	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"
)

// Runner builds and runs exec.Cmd values, with the command constructor
// swappable for tests.
type Runner struct {
	Log     *logrus.Entry
	command func(string, ...string) *exec.Cmd
}

// NewRunner builds a Runner backed by the real exec.Command.
func NewRunner(log *logrus.Entry) *Runner {
	return &Runner{Log: log, command: exec.Command}
}

// SetCommand overrides the command constructor. For tests only.
func (r *Runner) SetCommand(cmd func(string, ...string) *exec.Cmd) {
	r.command = cmd
}

// NewCmd builds a *exec.Cmd inheriting the parent environment.
func (r *Runner) NewCmd(name string, args ...string) *exec.Cmd {
	cmd := r.command(name, args...)
	cmd.Env = os.Environ()
	return cmd
}

// ExecutableFromString splits commandStr with shell-word semantics and
// builds the resulting command, e.g. for a compiler invocation assembled
// from a config template plus extra flags.
func (r *Runner) ExecutableFromString(commandStr string) *exec.Cmd {
	argv := str.ToArgv(commandStr)
	return r.NewCmd(argv[0], argv[1:]...)
}

// RunCommandWithOutput runs commandStr to completion and returns its
// standard output, or a sanitised error built from stderr on failure.
func (r *Runner) RunCommandWithOutput(ctx context.Context, commandStr string) (string, error) {
	argv := str.ToArgv(commandStr)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = os.Environ()

	before := time.Now()
	output, err := sanitisedOutput(cmd.Output())
	r.Log.WithField("duration", time.Since(before)).Debug(commandStr)
	return output, err
}

func sanitisedOutput(output []byte, err error) (string, error) {
	outputString := string(output)
	if err == nil {
		return outputString, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return outputString, errors.New(string(exitErr.Stderr))
	}
	return "", wrapError(err)
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 0)
}

// PipedCmd is a started subprocess with its stdin and stdout still open as
// pipes, for callers (the session driver) that need to write commands and
// stream records themselves rather than waiting for full completion.
type PipedCmd struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
}

// StartPiped starts cmd with stdin/stdout wired to pipes and its process
// group set so the whole tree can be killed together (some debuggers fork
// helper processes that would otherwise survive the parent's death).
func (r *Runner) StartPiped(cmd *exec.Cmd) (*PipedCmd, error) {
	kill.PrepareForChildren(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, wrapError(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wrapError(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, wrapError(err)
	}
	return &PipedCmd{Cmd: cmd, Stdin: stdin, Stdout: stdout}, nil
}

// Kill forcibly terminates cmd's process group, falling back to the single
// process if no group was prepared.
func (r *Runner) Kill(cmd *exec.Cmd) error {
	return kill.Kill(cmd)
}
