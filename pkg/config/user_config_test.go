package config

import (
	"testing"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	defaults := GetDefaultConfig()
	assert.Equal(t, "clang", defaults.Compiler.Path)
	assert.Equal(t, "gdb", defaults.GDB.Path)
	assert.Equal(t, "", defaults.Target)
	assert.Equal(t, 100, defaults.TraversalThrottleMillis)
}

func TestUserConfigYAMLUnmarshalOverridesDefaults(t *testing.T) {
	defaults := GetDefaultConfig()

	yamlContent := `
compiler:
  path: gcc
  extraFlags: -std=c11
gdb:
  extraArgs: --batch
target: "1 2 3"
traversalThrottleMillis: 0
`
	err := yaml.Unmarshal([]byte(yamlContent), &defaults)
	require.NoError(t, err)

	assert.Equal(t, "gcc", defaults.Compiler.Path)
	assert.Equal(t, "-std=c11", defaults.Compiler.ExtraFlags)
	assert.Equal(t, "gdb", defaults.GDB.Path, "unset fields keep the default they were unmarshalled onto")
	assert.Equal(t, "--batch", defaults.GDB.ExtraArgs)
	assert.Equal(t, "1 2 3", defaults.Target)
	assert.Equal(t, 0, defaults.TraversalThrottleMillis)
}

func TestValidateRejectsEmptyExecutablePaths(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Compiler.Path = ""
	assert.Error(t, cfg.Validate())

	cfg = GetDefaultConfig()
	cfg.GDB.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeThrottle(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.TraversalThrottleMillis = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsTheDefaultConfig(t *testing.T) {
	assert.NoError(t, GetDefaultConfig().Validate())
}
