package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_WizardFlow(t *testing.T) {
	// Given: a document and a scripted conversation
	setupCLI(t)
	docs := t.TempDir()
	sky := writeDoc(t, docs, "sky.txt", "The sky is blue.")

	script := strings.Join([]string{
		":continue",
		sky,
		":continue",
		"Sky",
		"What colour is the sky?",
		":sources",
		":quit",
	}, "\n") + "\n"

	// When: running the wizard
	out, err := run(t, script, "chat", "--no-color")

	// Then: the steps run in order
	require.NoError(t, err)
	assert.Contains(t, out, "upload at least one file")
	assert.Contains(t, out, "1 file(s) ready: sky.txt")
	assert.Contains(t, out, "Sky is ready: 1 document(s), 1 chunk(s)")
	assert.Contains(t, out, "Assistant: The sky is blue.")
	assert.Contains(t, out, "  sky.txt")
	assert.Contains(t, out, "chat> ")

	// And: the session was saved
	out, err = run(t, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "chat")
	assert.Contains(t, out, "Sky")
}

func TestChat_OpenExisting(t *testing.T) {
	// Given: a knowledge base built earlier
	setupCLI(t)
	docs := t.TempDir()
	_, err := run(t, "", "ingest", "--kb", "Sky", "--plain", writeDoc(t, docs, "sky.txt", "The sky is blue."))
	require.NoError(t, err)

	// When: opening it from the wizard
	out, err := run(t, ":list\n:open Sky\nIs the sky blue?\n:reset\n:sources\n", "chat", "--no-color")

	// Then
	require.NoError(t, err)
	assert.Contains(t, out, "Sky (1 documents)")
	assert.Contains(t, out, "Opened Sky")
	assert.Contains(t, out, "Assistant: The sky is blue.")
	assert.Contains(t, out, "Started over.")
	assert.Contains(t, out, "no knowledge base is open")
}

func TestChat_GuestSavesNothing(t *testing.T) {
	// Given
	setupCLI(t)
	docs := t.TempDir()
	sky := writeDoc(t, docs, "sky.txt", "The sky is blue.")

	// When: a guest builds and queries a knowledge base
	out, err := run(t, sky+"\n:continue\nSky\nWhat colour is the sky?\n", "chat", "--guest", "--no-color")

	// Then: it works but no session is saved for the owner
	require.NoError(t, err)
	assert.Contains(t, out, "Guest session.")
	assert.Contains(t, out, "Assistant: The sky is blue.")

	out, err = run(t, "", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions found.")
}

func TestChat_UnknownCommandAndBadFile(t *testing.T) {
	setupCLI(t)

	out, err := run(t, ":bogus\n/nonexistent/file.txt\n:open\n:help\n:q\n", "chat", "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "unknown command :bogus")
	assert.Contains(t, out, "cannot read /nonexistent/file.txt")
	assert.Contains(t, out, "usage: :open NAME")
	assert.Contains(t, out, ":sources")
}

func TestChat_GuestAndSessionExclusive(t *testing.T) {
	setupCLI(t)

	_, err := run(t, "", "chat", "--guest", "--session", "abc")

	require.Error(t, err)
}
