//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"merge", "backup", "fetch", "rules", "runs"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pricing-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestMergeCommand_Flags(t *testing.T) {
	for _, name := range []string{"input", "master", "source", "output", "in-place", "rules", "strict", "skip-duplicates", "json"} {
		require.NotNil(t, mergeCmd.Flags().Lookup(name), "merge command should have --%s flag", name)
	}
	assert.Equal(t, "false", mergeCmd.Flags().Lookup("in-place").DefValue)
}

func TestBackupCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range backupCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["create"])
	assert.True(t, names["list"])
	assert.NotNil(t, backupCmd.PersistentFlags().Lookup("master"))
}

func TestRunsCommand_Flags(t *testing.T) {
	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
	assert.NotNil(t, runsListCmd.Flags().Lookup("status"))
	assert.NotNil(t, runsListCmd.Flags().Lookup("master"))
}

func TestFetchCommand_Flags(t *testing.T) {
	assert.NotNil(t, fetchCmd.Flags().Lookup("source"))
	assert.NotNil(t, fetchCmd.Flags().Lookup("dest"))
}
