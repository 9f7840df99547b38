// Package compiler invokes the compiler that turns a debugger driver's
// source target into the binary it debugs. Compilation happens once,
// before a session opens, and is treated as an external collaborator by
// the rest of the driver — this package exists only to own that one
// invocation and the lifetime of the binary it produces.
package compiler

import (
	"context"
	"os"

	"github.com/mgutz/str"
	"github.com/sirupsen/logrus"

	"github.com/fluoresce/fluoresce/pkg/config"
	"github.com/fluoresce/fluoresce/pkg/procutil"
)

// Build compiles sourcePath into a binary at outputPath using cfg's
// compiler path and any extra flags, built for full debug info, no
// optimization, every warning promoted to an error, and every local
// declared zero-initialized, so that memory a traversal reaches has a
// reproducible rather than accidental value.
func Build(ctx context.Context, log *logrus.Entry, cfg config.CompilerConfig, sourcePath, outputPath string) error {
	runner := procutil.NewRunner(log)

	args := []string{
		sourcePath,
		"-o", outputPath,
		"-g",
		"-O0",
		"-Wall",
		"-Wextra",
		"-Werror",
		"-ftrivial-auto-var-init=zero",
	}
	if cfg.ExtraFlags != "" {
		args = append(args, str.ToArgv(cfg.ExtraFlags)...)
	}

	cmd := runner.NewCmd(cfg.Path, args...)
	// CommandContext isn't used directly here so NewCmd can stay the single
	// place that wires Env; wrap cancellation manually instead.
	done := make(chan error, 1)
	go func() { done <- cmd.Run() }()

	select {
	case <-ctx.Done():
		_ = runner.Kill(cmd)
		return ctx.Err()
	case err := <-done:
		if err != nil {
			log.WithError(err).WithField("compiler", cfg.Path).Error("compilation failed")
			return err
		}
		return nil
	}
}

// Cleanup removes the compiled binary, ignoring a missing file.
func Cleanup(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
