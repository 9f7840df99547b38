package session

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluoresce/fluoresce/pkg/config"
	"github.com/fluoresce/fluoresce/pkg/mierr"
	"github.com/fluoresce/fluoresce/pkg/miparser"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func openFakeSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.GDBConfig{Path: "testdata/fake_gdb.sh"}
	s, err := Open(testLogger(), cfg, "testdata/fake_target", nil, false)
	require.NoError(t, err)
	return s
}

func TestRunCommandRoundTripsThroughTheFakeDebugger(t *testing.T) {
	s := openFakeSession(t)
	defer s.Close()

	class, value, err := s.RunCommand("ping")
	require.NoError(t, err)
	assert.Equal(t, "done", class)

	echoed, ok := value.Field("echoed")
	require.True(t, ok)
	str, err := echoed.AsString()
	require.NoError(t, err)
	assert.Equal(t, "ping", str)
}

func TestOverlappingRunCommandIsAMisuseError(t *testing.T) {
	s := openFakeSession(t)
	defer s.Close()

	// Simulate a command already in flight without actually blocking in
	// RunCommand itself, so this goroutine can observe the guard directly.
	atomic.StoreInt32(&s.inFlight, 1)
	defer atomic.StoreInt32(&s.inFlight, 0)

	_, _, err := s.RunCommand("second")
	require.Error(t, err)
	assert.True(t, mierr.HasCode(err, mierr.MisuseError))
}

func TestWithExclusiveRunsMultipleCommandsUnderOneLease(t *testing.T) {
	s := openFakeSession(t)
	defer s.Close()

	var seen []string
	err := s.WithExclusive(func(run func(string) (string, miparser.Value, error)) error {
		for _, cmd := range []string{"one", "two", "three"} {
			class, value, err := run(cmd)
			if err != nil {
				return err
			}
			if class != "done" {
				t.Fatalf("unexpected class %q", class)
			}
			echoed, ok := value.Field("echoed")
			require.True(t, ok)
			str, err := echoed.AsString()
			require.NoError(t, err)
			seen = append(seen, str)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, seen)
}

func TestWithExclusiveRejectsOverlapWithAnInFlightRunCommand(t *testing.T) {
	s := openFakeSession(t)
	defer s.Close()

	atomic.StoreInt32(&s.inFlight, 1)
	defer atomic.StoreInt32(&s.inFlight, 0)

	err := s.WithExclusive(func(run func(string) (string, miparser.Value, error)) error {
		t.Fatal("callback must not run while another command is in flight")
		return nil
	})
	require.Error(t, err)
	assert.True(t, mierr.HasCode(err, mierr.MisuseError))
}

func TestRunCommandDoesNotBlockOnUnconsumedOutOfBandMessages(t *testing.T) {
	s := openFakeSession(t)
	defer s.Close()

	// Nothing reads s.OutOfBandMessages() in this test. Before the logs
	// channel was buffered, the "chatty" reply's three out-of-band records
	// would block the reader goroutine on the first send and this
	// RunCommand would never see its result.
	done := make(chan error, 1)
	go func() {
		_, _, err := s.RunCommand("chatty")
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("RunCommand blocked on an unconsumed out-of-band message")
	}
}

func TestCloseTearsDownCleanly(t *testing.T) {
	s := openFakeSession(t)

	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Close did not return in time")
	}

	_, _, err := s.RunCommand("after-close")
	require.Error(t, err)
	assert.True(t, mierr.HasCode(err, mierr.MisuseError))
}
