package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Flags(t *testing.T) {
	cmd := Config()

	require.NotNil(t, cmd)
	assert.Equal(t, "config", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("path"))
	assert.NotNil(t, cmd.Flags().Lookup("repo"))
	assert.NotNil(t, cmd.Flags().Lookup("version"))
	assert.NotNil(t, cmd.Flags().Lookup("reload"))
}

func TestUnconfig_Flags(t *testing.T) {
	cmd := Unconfig()

	require.NotNil(t, cmd)
	assert.Equal(t, "unconfig", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("name"))
	assert.NotNil(t, cmd.Flags().Lookup("repo"))
	assert.NotNil(t, cmd.Flags().Lookup("path"))
}

func TestAWS_Flags(t *testing.T) {
	cmd := AWS()

	require.NotNil(t, cmd)
	assert.Equal(t, "aws", cmd.Use)
	assert.NotNil(t, cmd.Flags().Lookup("profile"))
	assert.NotNil(t, cmd.Flags().Lookup("refresh"))
}

func TestStart_FlagDefaults(t *testing.T) {
	cmd := Start()

	require.NotNil(t, cmd)
	assert.Equal(t, "start", cmd.Use)

	cpu := cmd.Flags().Lookup("cpu")
	require.NotNil(t, cpu)
	assert.Equal(t, "8", cpu.DefValue)

	memory := cmd.Flags().Lookup("memory")
	require.NotNil(t, memory)
	assert.Equal(t, "16", memory.DefValue)

	disk := cmd.Flags().Lookup("disk")
	require.NotNil(t, disk)
	assert.Equal(t, "60", disk.DefValue)
}
