package ui

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/chatmydocs/internal/kb"
)

func TestStage_String(t *testing.T) {
	tests := []struct {
		stage Stage
		name  string
		icon  string
	}{
		{StageExtracting, "Extracting", "READ"},
		{StageChunking, "Chunking", "CHUNK"},
		{StageEmbedding, "Embedding", "EMBED"},
		{StageIndexing, "Indexing", "INDEX"},
		{StageComplete, "Complete", "DONE"},
		{Stage(99), "Unknown", "???"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.stage.String())
			assert.Equal(t, tt.icon, tt.stage.Icon())
		})
	}
}

func TestStageFromKB(t *testing.T) {
	assert.Equal(t, StageExtracting, StageFromKB(kb.StageExtracting))
	assert.Equal(t, StageChunking, StageFromKB(kb.StageChunking))
	assert.Equal(t, StageEmbedding, StageFromKB(kb.StageEmbedding))
	assert.Equal(t, StageIndexing, StageFromKB(kb.StageIndexing))
	assert.Equal(t, StageComplete, StageFromKB(kb.Stage("other")))
}

func TestNewConfig_Options(t *testing.T) {
	// Given: options
	buf := &bytes.Buffer{}

	// When: creating a config
	cfg := NewConfig(buf, WithForcePlain(true), WithNoColor(true), WithKnowledgeBase("notes"))

	// Then: all options are applied
	assert.Same(t, buf, cfg.Output)
	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "notes", cfg.KnowledgeBase)
}

func TestNewRenderer_PlainForNonTTY(t *testing.T) {
	// Given: a buffer output
	cfg := NewConfig(&bytes.Buffer{})

	// When: creating a renderer
	r := NewRenderer(cfg)

	// Then: the plain renderer is chosen
	_, ok := r.(*PlainRenderer)
	assert.True(t, ok)
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestDetectCI(t *testing.T) {
	t.Setenv("CI", "true")
	assert.True(t, DetectCI())
}

func TestDetectNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, DetectNoColor())
}

func TestObserve_FeedsRendererAndTracker(t *testing.T) {
	// Given: a plain renderer and a tracker
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))
	tracker := NewProgressTracker()
	observe := Observe(r, tracker)

	// When: ingestion events arrive
	observe(kb.ProgressEvent{Stage: kb.StageExtracting, Current: 0, Total: 2, File: "a.pdf"})
	observe(kb.ProgressEvent{Stage: kb.StageExtracting, Current: 1, Total: 2, File: "b.docx"})
	observe(kb.ProgressEvent{Stage: kb.StageEmbedding, Current: 0, Total: 10})
	observe(kb.ProgressEvent{Stage: kb.StageEmbedding, Current: 10, Total: 10})

	// Then: both see them
	out := buf.String()
	assert.Contains(t, out, "[READ] 1/2 - a.pdf")
	assert.Contains(t, out, "[READ] 2/2 - b.docx")
	assert.Contains(t, out, "[EMBED] 10/10 chunks")
	stats := tracker.Stats()
	assert.Equal(t, StageEmbedding, stats.Stage)
	assert.Equal(t, 1.0, stats.Progress)
}
