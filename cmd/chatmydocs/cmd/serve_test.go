package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeCmd_Flags(t *testing.T) {
	cmd := NewRootCmd()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	transport := serveCmd.Flags().Lookup("transport")
	require.NotNil(t, transport)
	assert.Equal(t, "stdio", transport.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("addr"))
	assert.NotNil(t, serveCmd.Flags().Lookup("skip-checks"))
}

func TestRunServe_UnknownTransport(t *testing.T) {
	// Given
	setupCLI(t)

	// When: asking for a transport that does not exist
	err := runServe(context.Background(), NewRootCmd(), "carrier-pigeon", "", true)

	// Then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestRunServe_FailedPreflightStopsStartup(t *testing.T) {
	// Given: generation points at an Ollama host that is down
	setupCLI(t)
	t.Setenv("CHATMYDOCS_OLLAMA_HOST", "http://127.0.0.1:1")

	// When
	cmd := NewRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	err := runServe(context.Background(), cmd, "stdio", "", false)

	// Then: the server never starts and the check results are shown
	require.ErrorIs(t, err, errChecksFailed)
	assert.Contains(t, stderr.String(), "not reachable")
}
