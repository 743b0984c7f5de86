package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/answer"
	cerrors "github.com/Aman-CERP/chatmydocs/internal/errors"
	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

func TestIngestAskListDelete(t *testing.T) {
	// Given: a document on disk
	setupCLI(t)
	docs := t.TempDir()
	sky := writeDoc(t, docs, "sky.txt", "The sky is blue.")

	// When: building a knowledge base
	out, err := run(t, "", "ingest", "--kb", "Sky", "--plain", "--no-color", sky)

	// Then: plain progress ends with a completion line
	require.NoError(t, err)
	assert.Contains(t, out, "[READ]")
	assert.Contains(t, out, "ready with 1 documents, 1 chunks")

	// And: the knowledge base is listed
	out, err = run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Sky")

	// And: questions are answered with sources
	out, err = run(t, "", "ask", "--kb", "Sky", "--no-color", "What", "colour", "is", "the", "sky?")
	require.NoError(t, err)
	assert.Contains(t, out, "Assistant: The sky is blue.")
	assert.Contains(t, out, "Sources: sky.txt")

	// And: delete removes it
	out, err = run(t, "", "delete", "--kb", "Sky", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Knowledge base 'Sky' deleted.")

	_, err = run(t, "", "ask", "--kb", "Sky", "Anything?")
	require.Error(t, err)
	assert.True(t, cerrors.IsNotFound(err))
}

func TestAddAppendsDocuments(t *testing.T) {
	// Given: an existing knowledge base
	setupCLI(t)
	docs := t.TempDir()
	_, err := run(t, "", "ingest", "--kb", "Notes", "--plain", writeDoc(t, docs, "a.txt", "Alpha notes."))
	require.NoError(t, err)

	// When: adding a second document
	_, err = run(t, "", "add", "--kb", "Notes", "--plain", writeDoc(t, docs, "b.txt", "Beta notes."))
	require.NoError(t, err)

	// Then: both documents are counted
	out, err := run(t, "", "list", "--json")
	require.NoError(t, err)

	var kbs []kb.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &kbs))
	require.Len(t, kbs, 1)
	assert.Equal(t, 2, kbs[0].Documents)
}

func TestIngest_Validation(t *testing.T) {
	setupCLI(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "missing kb flag", args: []string{"ingest", "x.txt"}, wantErr: "required flag"},
		{name: "no files", args: []string{"ingest", "--kb", "A"}, wantErr: "requires at least 1 arg"},
		{name: "missing file", args: []string{"ingest", "--kb", "A", "/nonexistent/x.txt"}, wantErr: "cannot read"},
		{name: "directory", args: []string{"ingest", "--kb", "A", t.TempDir()}, wantErr: "is a directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", tt.args...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIngest_SkipUnreadable(t *testing.T) {
	// Given: one good file and one unsupported file
	setupCLI(t)
	docs := t.TempDir()
	good := writeDoc(t, docs, "good.txt", "Readable text.")
	bad := writeDoc(t, docs, "bad.xyz", "???")

	// When: aborting on unreadable files (the default)
	_, err := run(t, "", "ingest", "--kb", "Mixed", "--plain", good, bad)

	// Then: the build fails
	require.Error(t, err)

	// When: skipping unreadable files
	out, err := run(t, "", "ingest", "--kb", "Mixed", "--plain", "--skip-unreadable", good, bad)

	// Then: the bad file is reported and the rest indexed
	require.NoError(t, err)
	assert.Contains(t, out, "WARN: bad.xyz")
	assert.Contains(t, out, "ready with 1 documents")
}

func TestAsk_JSONAndRefusal(t *testing.T) {
	// Given
	setupCLI(t)
	docs := t.TempDir()
	_, err := run(t, "", "ingest", "--kb", "Sky", "--plain", writeDoc(t, docs, "sky.txt", "The sky is blue."))
	require.NoError(t, err)

	// When: the documents do not contain the answer
	out, err := run(t, "", "ask", "--kb", "Sky", "--fresh", "--json", "What is the population of Mars?")

	// Then: the refusal carries no sources
	require.NoError(t, err)
	var resp answer.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, answer.RefusalMessage, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestDelete_Confirmation(t *testing.T) {
	// Given
	setupCLI(t)
	docs := t.TempDir()
	_, err := run(t, "", "ingest", "--kb", "Keep", "--plain", writeDoc(t, docs, "k.txt", "Keep me."))
	require.NoError(t, err)

	// When: declining the prompt
	out, err := run(t, "n\n", "delete", "--kb", "Keep")

	// Then: nothing is deleted
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = run(t, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Keep")
}

func TestDelete_MissingSucceeds(t *testing.T) {
	setupCLI(t)

	out, err := run(t, "", "delete", "--kb", "Ghost", "--yes")

	require.NoError(t, err)
	assert.Contains(t, out, "deleted")
}

func TestList_Empty(t *testing.T) {
	setupCLI(t)

	out, err := run(t, "", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "No knowledge bases found.")
}
