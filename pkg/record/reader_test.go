package record

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluoresce/fluoresce/pkg/miparser"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

// drain collects everything off both channels concurrently with Start;
// the buffers are generous but still finite, so a test pushing enough
// input could in principle fill them without a concurrent reader.
func drain(t *testing.T, rd *Reader) ([]Result, []string) {
	t.Helper()
	var results []Result
	var logs []string
	resultsDone, logsDone := false, false
	for !resultsDone || !logsDone {
		select {
		case r, ok := <-rd.Results():
			if !ok {
				resultsDone = true
				continue
			}
			results = append(results, r)
		case l, ok := <-rd.Logs():
			if !ok {
				logsDone = true
				continue
			}
			logs = append(logs, l)
		case <-time.After(time.Second):
			t.Fatal("timed out draining reader channels")
		}
	}
	return results, logs
}

func TestReaderDemultiplexesResultAndLogRecords(t *testing.T) {
	input := "^done,stack=[frame={level=\"0\"}]\n(gdb)\n=stopped,reason=\"breakpoint-hit\"\n(gdb)\n"

	rd := NewReader(testLogger())
	go rd.Start(strings.NewReader(input))

	results, logs := drain(t, rd)
	<-rd.Done()
	require.NoError(t, rd.Err())

	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].Class)
	require.NoError(t, results[0].Err)

	stack, ok := results[0].Value.Field("stack")
	require.True(t, ok)
	require.Equal(t, miparser.KindList, stack.Kind)
	frame, ok := stack.Index(0)
	require.True(t, ok)
	level, ok := frame.Field("level")
	require.True(t, ok)
	s, err := level.AsString()
	require.NoError(t, err)
	assert.Equal(t, "0", s)

	require.Len(t, logs, 1)
	assert.Equal(t, `(=) stopped,reason="breakpoint-hit"`, logs[0])
}

func TestReaderDiscardsTerminatorLines(t *testing.T) {
	input := "(gdb)\n(gdb)\n^done\n(gdb)\n"

	rd := NewReader(testLogger())
	go rd.Start(strings.NewReader(input))

	results, logs := drain(t, rd)
	<-rd.Done()

	require.Len(t, results, 1)
	assert.Equal(t, "done", results[0].Class)
	assert.Empty(t, logs)
}

func TestReaderSurfacesParseErrorsWithoutStoppingTheStream(t *testing.T) {
	input := "^done,not=valid=={\n(gdb)\n^running\n(gdb)\n"

	rd := NewReader(testLogger())
	go rd.Start(strings.NewReader(input))

	results, _ := drain(t, rd)
	<-rd.Done()
	require.NoError(t, rd.Err())

	require.Len(t, results, 2)
	assert.Equal(t, "done", results[0].Class)
	assert.Error(t, results[0].Err)
	assert.Equal(t, "running", results[1].Class)
	assert.NoError(t, results[1].Err)
}

func TestReaderClassifiesAllStreamSigils(t *testing.T) {
	input := "~\"console text\"\n@\"target text\"\n&\"log text\"\n*stopped,reason=\"exited-normally\"\n+status\n(gdb)\n"

	rd := NewReader(testLogger())
	go rd.Start(strings.NewReader(input))

	_, logs := drain(t, rd)
	<-rd.Done()

	assert.Equal(t, []string{
		`(~) "console text"`,
		`(@) "target text"`,
		`(&) "log text"`,
		`(*) stopped,reason="exited-normally"`,
		`(+) status`,
	}, logs)
}
