// Package session owns one debugger subprocess and its pty, and is the
// only place in the driver that writes to the debugger's stdin. It
// serializes run_command, demultiplexes the record stream, and tears
// everything down in order: stdin, process, queues, pty, artifact.
package session

import (
	"context"
	"io"
	"os/exec"
	"sync/atomic"

	"github.com/mgutz/str"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/fluoresce/fluoresce/pkg/compiler"
	"github.com/fluoresce/fluoresce/pkg/config"
	"github.com/fluoresce/fluoresce/pkg/mierr"
	"github.com/fluoresce/fluoresce/pkg/miparser"
	"github.com/fluoresce/fluoresce/pkg/procutil"
	"github.com/fluoresce/fluoresce/pkg/ptyio"
	"github.com/fluoresce/fluoresce/pkg/record"
)

// Session is a live debugger process, the pty its target writes to, and
// the record reader demultiplexing its stdout.
type Session struct {
	log    *logrus.Entry
	runner *procutil.Runner

	cmd   *exec.Cmd
	piped *procutil.PipedCmd
	pty   *ptyio.Channel
	rd    *record.Reader

	targetOutput chan []byte

	mu       deadlock.Mutex
	inFlight int32 // atomic; guards against overlapping run_command calls

	binaryPath string
	ownsBinary bool
	closed     bool
}

// Open allocates a pty, spawns the debugger pointed at binaryPath, and
// starts its record reader. ownsBinary marks whether Close should delete
// binaryPath (true when a compiler produced it for this session alone).
func Open(log *logrus.Entry, cfg config.GDBConfig, binaryPath string, targetArgs []string, ownsBinary bool) (*Session, error) {
	pty, err := ptyio.Open()
	if err != nil {
		return nil, mierr.New(mierr.IOFailure, "allocating pty: %v", err)
	}

	runner := procutil.NewRunner(log)

	gdbArgs := []string{
		"--interpreter=mi4",
		"--quiet",
		"-nx",
		"-nh",
		"--tty", pty.SlaveName(),
	}
	if cfg.ExtraArgs != "" {
		gdbArgs = append(gdbArgs, str.ToArgv(cfg.ExtraArgs)...)
	}
	gdbArgs = append(gdbArgs, "--args", binaryPath)
	gdbArgs = append(gdbArgs, targetArgs...)

	cmd := runner.NewCmd(cfg.Path, gdbArgs...)
	piped, err := runner.StartPiped(cmd)
	if err != nil {
		_ = pty.Close()
		return nil, mierr.New(mierr.IOFailure, "starting debugger: %v", err)
	}

	rd := record.NewReader(log)
	go rd.Start(piped.Stdout)

	s := &Session{
		log:          log,
		runner:       runner,
		cmd:          cmd,
		piped:        piped,
		pty:          pty,
		rd:           rd,
		targetOutput: make(chan []byte),
		binaryPath:   binaryPath,
		ownsBinary:   ownsBinary,
	}

	go s.pumpTargetOutput()

	return s, nil
}

// OpenWithCompiler compiles sourcePath and opens a session on the result,
// so the produced binary is always owned (and deleted) by the session.
func OpenWithCompiler(ctx context.Context, log *logrus.Entry, cfg config.UserConfig, sourcePath, binaryPath string, targetArgs []string) (*Session, error) {
	if err := compiler.Build(ctx, log, cfg.Compiler, sourcePath, binaryPath); err != nil {
		return nil, mierr.New(mierr.IOFailure, "compiling target: %v", err)
	}
	return Open(log, cfg.GDB, binaryPath, targetArgs, true)
}

func (s *Session) pumpTargetOutput() {
	defer close(s.targetOutput)
	for chunk := range s.pty.Output() {
		s.targetOutput <- chunk
	}
}

// RunCommand writes cmd to the debugger's stdin and returns the next
// result record. It is serialized: a second call while one is already in
// flight returns a MisuseError rather than desynchronizing the reply
// stream.
func (s *Session) RunCommand(cmd string) (string, miparser.Value, error) {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		return "", miparser.Value{}, mierr.New(mierr.MisuseError, "run_command called while another is still in flight")
	}
	defer atomic.StoreInt32(&s.inFlight, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runLocked(cmd)
}

// WithExclusive holds the single command lease across every call the
// callback makes through the run function it is handed, rather than
// re-acquiring the lease once per command. Multi-step sequences that must
// not interleave with anyone else's run_command — variable_info's
// var-create/var-info-type/var-list-children/var-delete lease in
// particular — use this instead of calling RunCommand per step.
func (s *Session) WithExclusive(f func(run func(cmd string) (string, miparser.Value, error)) error) error {
	if !atomic.CompareAndSwapInt32(&s.inFlight, 0, 1) {
		return mierr.New(mierr.MisuseError, "run_command called while another is still in flight")
	}
	defer atomic.StoreInt32(&s.inFlight, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	return f(s.runLocked)
}

// runLocked assumes s.mu is already held and no other run_command is in
// flight; it is the shared body of RunCommand and WithExclusive.
func (s *Session) runLocked(cmd string) (string, miparser.Value, error) {
	if s.closed {
		return "", miparser.Value{}, mierr.New(mierr.MisuseError, "run_command called on a closed session")
	}

	if _, err := io.WriteString(s.piped.Stdin, cmd+"\n"); err != nil {
		return "", miparser.Value{}, mierr.New(mierr.IOFailure, "writing command %q: %v", cmd, err)
	}

	res, ok := <-s.rd.Results()
	if !ok {
		err := s.rd.Err()
		if err == nil {
			err = mierr.New(mierr.IOFailure, "debugger closed its result stream")
		}
		return "", miparser.Value{}, err
	}
	if res.Err != nil {
		return res.Class, miparser.Value{}, res.Err
	}
	return res.Class, res.Value, nil
}

// OutOfBandMessages is the out-of-band log stream, terminating when the
// reader's log channel is closed (process EOF).
func (s *Session) OutOfBandMessages() <-chan string {
	return s.rd.Logs()
}

// TargetOutput is the raw byte stream read from the pty master, terminating
// on EOF.
func (s *Session) TargetOutput() <-chan []byte {
	return s.targetOutput
}

// Close tears the session down in a fixed order: stdin first (the MI
// equivalent of `-gdb-exit`), then the process, then the queues drain on
// their own as a consequence, then the pty, then the compiled artifact if
// this session owns it.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.piped.Stdin.Close(); err != nil {
		s.log.WithError(err).Warn("closing debugger stdin")
	}

	waitErr := s.cmd.Wait()
	<-s.rd.Done()

	if err := s.pty.Close(); err != nil {
		s.log.WithError(err).Warn("closing pty")
	}

	if s.ownsBinary {
		if err := compiler.Cleanup(s.binaryPath); err != nil {
			s.log.WithError(err).Warn("removing compiled binary")
		}
	}

	return waitErr
}
