// Package ptyio allocates the pseudo-terminal pair wired to the debugged
// program's stdin/stdout/stderr, independent of the pipes used to talk to
// the debugger itself.
package ptyio

import (
	"os"

	"github.com/creack/pty"
)

// Channel owns one pty pair. Slave.Name() is the device path to hand the
// debugger as its target tty; Master is read by Output to expose the
// target program's terminal I/O to consumers.
type Channel struct {
	Master *os.File
	Slave  *os.File
}

// Open allocates a fresh pty pair.
func Open() (*Channel, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}
	return &Channel{Master: master, Slave: slave}, nil
}

// SlaveName is the tty device path to pass to the debugger, e.g. as the
// argument to its `--tty` (or equivalent `new-ui`/`set inferior-tty`) flag.
func (c *Channel) SlaveName() string {
	return c.Slave.Name()
}

// Output starts a goroutine that reads the master side in fixed-size
// chunks and delivers each non-empty read on the returned channel. The
// channel is closed on EOF or read error; a read error other than EOF is
// not currently surfaced past closing the channel, matching the session
// driver's tolerance for target-side I/O noise once the target has exited.
func (c *Channel) Output() <-chan []byte {
	out := make(chan []byte)
	go func() {
		defer close(out)
		buf := make([]byte, 1024)
		for {
			n, err := c.Master.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				out <- chunk
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// Close releases both descriptors. Safe to call once, on session teardown.
func (c *Channel) Close() error {
	errMaster := c.Master.Close()
	errSlave := c.Slave.Close()
	if errMaster != nil {
		return errMaster
	}
	return errSlave
}
