// Package app wires one end-to-end debugging run together: compile the
// target, open a session on it, breakpoint every function the symbol
// table knows about, run it, then step and traverse until the target
// exits.
package app

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"

	"github.com/fluoresce/fluoresce/pkg/config"
	"github.com/fluoresce/fluoresce/pkg/debugger"
	"github.com/fluoresce/fluoresce/pkg/log"
	"github.com/fluoresce/fluoresce/pkg/mierr"
	"github.com/fluoresce/fluoresce/pkg/session"
	"github.com/fluoresce/fluoresce/pkg/traverse"
	"github.com/fluoresce/fluoresce/pkg/utils"
)

// App owns one session's full lifecycle: its compiled binary, the
// debugger subprocess driving it, and the typed layers built over that
// subprocess.
type App struct {
	Config    *config.AppConfig
	Log       *logrus.Entry
	Session   *session.Session
	API       *debugger.API
	Traverser *traverse.Traverser

	ErrorChan chan error
}

// NewApp compiles Config.SourcePath and opens a debugger session on the
// result, wiring the typed command layer and traversal engine over it.
func NewApp(cfg *config.AppConfig) (*App, error) {
	app := &App{
		Config:    cfg,
		ErrorChan: make(chan error),
	}
	app.Log = log.NewLogger(cfg)

	var targetArgs []string
	if cfg.UserConfig.Target != "" {
		targetArgs = str.ToArgv(cfg.UserConfig.Target)
	}

	binaryPath := filepath.Join(cfg.ConfigDir, binaryName(cfg.SourcePath))
	sess, err := session.OpenWithCompiler(context.Background(), app.Log, *cfg.UserConfig, cfg.SourcePath, binaryPath, targetArgs)
	if err != nil {
		return nil, err
	}
	app.Session = sess

	app.API = debugger.New(sess, app.Log)
	app.Traverser = traverse.New(app.API, app.Log, time.Duration(cfg.UserConfig.TraversalThrottleMillis)*time.Millisecond)

	go app.logOutOfBandMessages()
	go app.logTargetOutput()

	return app, nil
}

// logOutOfBandMessages drains the session's out-of-band MI stream
// (console/target/log output and async records) for as long as the
// session is open, logging each line as it arrives. Something must always
// be reading this channel: the reader goroutine that feeds it blocks on
// send once its buffer fills, which would eventually stall every
// RunCommand/WithExclusive call on the session.
func (app *App) logOutOfBandMessages() {
	for msg := range app.Session.OutOfBandMessages() {
		app.Log.WithField("component", "mi-log").Info(msg)
	}
}

// logTargetOutput drains the raw bytes the debugged program writes to its
// pty, for the same reason logOutOfBandMessages must run: nobody else
// reads this channel, and its producer goroutine would otherwise block
// forever on the first byte the target writes.
func (app *App) logTargetOutput() {
	for chunk := range app.Session.TargetOutput() {
		app.Log.WithField("component", "target").Info(string(chunk))
	}
}

// binaryName derives the compiled artifact's filename from the source
// path, so two sessions against different targets in the same config
// directory never collide.
func binaryName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".out"
}

// noRegistersSuffix is the error text gdb reports from -exec-next once the
// inferior has already exited — the terminal condition for "the debugged
// program is done", distinguished from every other failure next can
// report.
const noRegistersSuffix = "No registers."

// Run breakpoints every known function, starts the target, and then
// repeatedly steps and traverses memory until the target exits (next
// failing with the "No registers." condition) or a step or traversal
// fails for some other reason.
func (app *App) Run() error {
	functions, err := app.API.Functions()
	if err != nil {
		return err
	}
	app.Log.WithField("functions", functions).Info("found functions")

	for _, fn := range functions {
		n, err := app.API.Breakpoint(fn)
		if err != nil {
			return err
		}
		app.Log.WithFields(logrus.Fields{"function": fn, "breakpoint": n}).Debug("breakpoint added")
	}

	if err := app.API.Run(); err != nil {
		return err
	}

	for {
		if err := app.API.Next(); err != nil {
			if isProgramExited(err) {
				return nil
			}
			return err
		}

		result, err := app.Traverser.Traverse()
		if err != nil {
			return err
		}
		app.Log.WithFields(logrus.Fields{
			"frames":    len(result.Frames),
			"addresses": len(result.Addresses),
		}).Info("traversal report")
	}
}

// isProgramExited reports whether err is the -exec-next failure gdb
// reports once the inferior is no longer running.
func isProgramExited(err error) bool {
	return mierr.HasCode(err, mierr.ProtocolMismatch) && strings.Contains(err.Error(), noRegistersSuffix)
}

// Close tears the session down.
func (app *App) Close() error {
	return utils.CloseMany([]io.Closer{app.Session})
}
