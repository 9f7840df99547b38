package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluoresce/fluoresce/pkg/config"
	"github.com/fluoresce/fluoresce/pkg/mierr"
)

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_DIR", dir)

	cfg, err := config.NewAppConfig("fluoresce", "test", "test", "test", false, "testdata/target.c")
	require.NoError(t, err)
	cfg.UserConfig.Compiler.Path = "testdata/fake_clang.sh"
	cfg.UserConfig.GDB.Path = "testdata/fake_gdb.sh"
	return cfg
}

func TestNewAppCompilesAndOpensASession(t *testing.T) {
	cfg := testAppConfig(t)
	a, err := NewApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	binaryPath := filepath.Join(cfg.ConfigDir, binaryName(cfg.SourcePath))
	_, statErr := os.Stat(binaryPath)
	assert.NoError(t, statErr, "the fake compiler should have produced the binary NewApp points gdb at")
}

func TestRunDrivesBreakpointsRunStepAndTraverseUntilTheTargetExits(t *testing.T) {
	cfg := testAppConfig(t)
	a, err := NewApp(cfg)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Run())
}

func TestIsProgramExitedRecognizesTheNoRegistersCondition(t *testing.T) {
	err := mierr.New(mierr.ProtocolMismatch, `"-exec-next": expected class "running", got "error" (No registers.)`)
	assert.True(t, isProgramExited(err))

	other := mierr.New(mierr.ProtocolMismatch, `"-exec-next": expected class "running", got "error" (The program is not being run.)`)
	assert.False(t, isProgramExited(other))
}

func TestBinaryNameStripsTheSourceExtension(t *testing.T) {
	assert.Equal(t, "target.out", binaryName("testdata/target.c"))
	assert.Equal(t, "target.out", binaryName("/a/b/target.c"))
}
