package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "history", "session", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "lead-wizard", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)

	idle := serveCmd.Flags().Lookup("tab-idle")
	require.NotNil(t, idle)
	assert.Equal(t, "30m0s", idle.DefValue)
}

func TestHistoryListCommand_Flags(t *testing.T) {
	limit := historyListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "25", limit.DefValue)
	require.NotNil(t, historyListCmd.Flags().Lookup("page"))
}

func TestSessionCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range sessionCmd.Commands() {
		names[c.Name()] = true
		user := c.Flags().Lookup("user")
		require.NotNil(t, user, "%s should have --user", c.Name())
		assert.Equal(t, "anonymous", user.DefValue)
	}
	assert.True(t, names["show"])
	assert.True(t, names["reset"])
}
