package cmd

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandListsServeAndVersion(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})

	require.NoError(t, rootCmd.Execute())

	out := buf.String()
	assert.Contains(t, out, "serve")
	assert.Contains(t, out, "version")
}

func TestVersionCommandPrintsVersionAndCommit(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rootCmd.SetArgs([]string{"version", "--no-banner"})
	execErr := rootCmd.Execute()

	w.Close()
	os.Stdout = oldStdout
	require.NoError(t, execErr)

	var captured bytes.Buffer
	_, err = captured.ReadFrom(r)
	require.NoError(t, err)

	assert.Contains(t, captured.String(), "Version: "+Version)
	assert.Contains(t, captured.String(), "Git Commit: "+GitCommit)
}
