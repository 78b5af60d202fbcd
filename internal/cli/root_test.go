package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "selda", cmd.Use)
	assert.Contains(t, cmd.Long, "CUE schema")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"validate", "create", "drop", "insert", "select", "explain", "cache", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	schemaFlag := cmd.PersistentFlags().Lookup("schema")
	require.NotNil(t, schemaFlag)
	assert.Equal(t, "s", schemaFlag.Shorthand)
	assert.Equal(t, ".", schemaFlag.DefValue)

	for _, name := range []string{"config", "driver", "dsn"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Empty(t, f.DefValue, name)
	}
}

func TestQueryCommandFlags(t *testing.T) {
	for _, name := range []string{"select", "explain", "cache"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := NewRootCommand().Find([]string{name})
			require.NoError(t, err)

			where := sub.Flags().Lookup("where")
			require.NotNil(t, where)
			assert.Equal(t, "w", where.Shorthand)

			limit := sub.Flags().Lookup("limit")
			require.NotNil(t, limit)
			assert.Equal(t, "-1", limit.DefValue)

			require.NotNil(t, sub.Flags().Lookup("order"))
			require.NotNil(t, sub.Flags().Lookup("columns"))
		})
	}
}

func TestCacheCommandFlags(t *testing.T) {
	sub, _, err := NewRootCommand().Find([]string{"cache"})
	require.NoError(t, err)

	repeat := sub.Flags().Lookup("repeat")
	require.NotNil(t, repeat)
	assert.Equal(t, "2", repeat.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "validate", t.TempDir()})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestTestCommandFlags(t *testing.T) {
	sub, _, err := NewRootCommand().Find([]string{"test"})
	require.NoError(t, err)
	assert.Equal(t, "test <scenarios-dir>", sub.Use)

	update := sub.Flags().Lookup("update")
	require.NotNil(t, update)
	assert.Equal(t, "false", update.DefValue)
	require.NotNil(t, sub.Flags().Lookup("filter"))
}
