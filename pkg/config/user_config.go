// Package config handles all the user-configuration for fluoresce. The
// fields here are all in PascalCase but in your actual config.yml they'll
// be in camelCase. You can view the current default config with
// `fluoresce --config`.
package config

// UserConfig holds all of the user-configurable options for a debugging
// session.
type UserConfig struct {
	// Compiler configures how the target's source file is compiled into a
	// debuggable binary before a session is opened.
	Compiler CompilerConfig `yaml:"compiler,omitempty"`

	// GDB configures the debugger subprocess itself.
	GDB GDBConfig `yaml:"gdb,omitempty"`

	// Target holds the extra argv passed to the debugged program, as a
	// single shell-word string (e.g. "1 2 3 --flag"). It is split into argv
	// with the same shell-word splitter the session driver uses for its
	// other command strings.
	Target string `yaml:"target,omitempty"`

	// TraversalThrottleMillis is the minimum number of milliseconds between
	// progress log lines emitted by the traversal engine. Zero or less
	// falls back to the traversal engine's own default period.
	TraversalThrottleMillis int `yaml:"traversalThrottleMillis,omitempty"`
}

// CompilerConfig determines what compiler fluoresce invokes, and with what
// flags, before opening a debugger session on a source file.
type CompilerConfig struct {
	// Path is the compiler executable, e.g. "clang" or "gcc".
	Path string `yaml:"path,omitempty"`

	// ExtraFlags is appended after the fixed, semantically-required flag
	// set (-g -O0 -Wall -Wextra -Werror -ftrivial-auto-var-init=zero), as a
	// single shell-word string.
	ExtraFlags string `yaml:"extraFlags,omitempty"`
}

// GDBConfig determines what debugger binary fluoresce drives and how.
type GDBConfig struct {
	// Path is the gdb executable.
	Path string `yaml:"path,omitempty"`

	// ExtraArgs is appended after the fixed MI flag set
	// (--interpreter=mi4 --quiet -nx -nh --tty=<slave>), as a single
	// shell-word string.
	ExtraArgs string `yaml:"extraArgs,omitempty"`
}

// GetDefaultConfig returns the default user config.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		Compiler: CompilerConfig{
			Path: "clang",
		},
		GDB: GDBConfig{
			Path: "gdb",
		},
		Target:                  "",
		TraversalThrottleMillis: 100,
	}
}
