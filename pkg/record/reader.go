// Package record implements a line-oriented MI record reader: it reads a
// debugger's stdout line by line, classifies each line by its leading
// sigil, and demultiplexes result records from out-of-band (stream/async)
// records onto two channels.
package record

import (
	"bufio"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fluoresce/fluoresce/pkg/miparser"
)

// Result is one `^`-prefixed result record: a class (done, running,
// connected, error, exit) and its parsed body. Err is set instead of Value
// when the body failed to parse; the class is still reported so callers
// can tell a genuine `^error` from a body this parser could not make
// sense of.
type Result struct {
	Class string
	Value miparser.Value
	Err   error
}

// Reader demultiplexes a subprocess's stdout into a result-record channel
// and an out-of-band log channel. Both channels are closed on EOF or read
// error; Err reports the terminal read error, if any. Both channels are
// buffered so that a burst of out-of-band chatter, or a consumer that is
// momentarily slow to drain Logs, never blocks the single reader goroutine
// and stalls Results along with it; a consumer that never keeps up at all
// still eventually blocks the producer, same as any bounded channel, but
// ordinary MI traffic never approaches the buffer size.
type Reader struct {
	log     *logrus.Entry
	results chan Result
	logs    chan string
	done    chan struct{}
	err     error
}

// logBufferSize bounds how far the out-of-band log channel can get ahead
// of its consumer before a send blocks the reader goroutine. GDB can emit
// several stream/async records per command (console echo, a breakpoint
// hit, a thread-group event), so this needs enough headroom that a
// consumer doing a bit of its own I/O per message (e.g. logging it) never
// stalls command dispatch.
const logBufferSize = 256

// resultBufferSize gives RunCommand/WithExclusive's blocking read a little
// slack even though the protocol is otherwise request/response; a session
// never has more than a handful of results in flight.
const resultBufferSize = 16

// NewReader builds a Reader. Call Start to begin reading r in a goroutine.
func NewReader(log *logrus.Entry) *Reader {
	return &Reader{
		log:     log,
		results: make(chan Result, resultBufferSize),
		logs:    make(chan string, logBufferSize),
		done:    make(chan struct{}),
	}
}

// Results is the channel of parsed `^` result records, in submission order.
func (rd *Reader) Results() <-chan Result {
	return rd.results
}

// Logs is the channel of out-of-band records, pre-formatted as
// "(<sigil>) <rest>". The `(gdb)` terminator never appears here.
func (rd *Reader) Logs() <-chan string {
	return rd.logs
}

// Done is closed once r has hit EOF or a read error and both of Results and
// Logs have been closed.
func (rd *Reader) Done() <-chan struct{} {
	return rd.done
}

// Err returns the terminal read error, if reading stopped for a reason
// other than clean EOF. Only meaningful after Done is closed.
func (rd *Reader) Err() error {
	return rd.err
}

// Start reads r line by line until EOF, dispatching each line to the result
// or log channel, then closes both channels and Done. It must be run in its
// own goroutine; it blocks for the subprocess's lifetime.
func (rd *Reader) Start(r io.Reader) {
	defer close(rd.done)
	defer close(rd.logs)
	defer close(rd.results)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "(gdb)" {
			continue
		}
		if line == "" {
			continue
		}
		rd.dispatch(line)
	}
	rd.err = scanner.Err()
}

func (rd *Reader) dispatch(line string) {
	kind := line[:1]
	message := line[1:]

	if kind != "^" {
		rd.logs <- "(" + kind + ") " + message
		return
	}

	class, body := message, ""
	if i := strings.IndexByte(message, ','); i >= 0 {
		class, body = message[:i], message[i+1:]
	}

	value, err := miparser.Parse(body)
	if err != nil {
		rd.log.WithError(err).WithField("class", class).Warn("failed to parse MI result body")
		rd.results <- Result{Class: class, Err: err}
		return
	}
	rd.results <- Result{Class: class, Value: value}
}
