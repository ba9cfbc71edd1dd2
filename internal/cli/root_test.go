package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "secretshare", cmd.Use)
	assert.Contains(t, cmd.Short, "self-destructing")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"migrate"},
		{"config", "validate"},
		{"config", "show"},
		{"share", "show"},
		{"share", "list"},
		{"share", "revoke"},
		{"share", "delete"},
		{"tasks", "list"},
		{"tasks", "run"},
		{"account", "show"},
		{"account", "grant-premium"},
		{"account", "revoke-premium"},
		{"account", "ban"},
		{"account", "unban"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}

func TestSubcommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))

	listCmd, _, err := cmd.Find([]string{"share", "list"})
	require.NoError(t, err)
	pageFlag := listCmd.Flags().Lookup("page")
	require.NotNil(t, pageFlag)
	assert.Equal(t, "1", pageFlag.DefValue)
	assert.NotNil(t, listCmd.Flags().Lookup("all"))

	grantCmd, _, err := cmd.Find([]string{"account", "grant-premium"})
	require.NoError(t, err)
	assert.NotNil(t, grantCmd.Flags().Lookup("until"))
	assert.NotNil(t, grantCmd.Flags().Lookup("for"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "migrate"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
