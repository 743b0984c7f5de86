package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Progress(t *testing.T) {
	// Given: a tracker in the embedding stage
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 200)

	// When: half the chunks are done
	p.Update(100, "")

	// Then
	assert.InDelta(t, 0.5, p.Progress(), 0.001)

	// When: the count overshoots
	p.Update(300, "")

	// Then: progress is capped
	assert.Equal(t, 1.0, p.Progress())
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	p := NewProgressTracker()

	assert.Equal(t, 0.0, p.Progress())
	assert.Equal(t, time.Duration(0), p.Stats().ETA)
}

func TestProgressTracker_ApplySwitchesStage(t *testing.T) {
	// Given
	p := NewProgressTracker()

	// When
	p.Apply(ProgressEvent{Stage: StageExtracting, Current: 0, Total: 3, CurrentFile: "a.pdf"})
	p.Apply(ProgressEvent{Stage: StageExtracting, Current: 2, Total: 3})
	p.Apply(ProgressEvent{Stage: StageChunking, Current: 0, Total: 5})

	// Then: the stage changed and the file was reset
	stats := p.Stats()
	assert.Equal(t, StageChunking, stats.Stage)
	assert.Equal(t, 5, stats.Total)
	assert.Empty(t, stats.CurrentFile)
}

func TestProgressTracker_KeepsLastFile(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageExtracting, 2)

	p.Update(0, "a.pdf")
	p.Update(1, "")

	assert.Equal(t, "a.pdf", p.Stats().CurrentFile)
}

func TestProgressTracker_Timings(t *testing.T) {
	// Given: a tracker that spent time extracting
	p := NewProgressTracker()
	p.SetStage(StageExtracting, 1)
	time.Sleep(20 * time.Millisecond)

	// When: moving on
	p.SetStage(StageEmbedding, 1)
	timings := p.Timings()

	// Then: extraction time was recorded and embedding is running
	assert.GreaterOrEqual(t, timings.Extract, 20*time.Millisecond)
	assert.Equal(t, time.Duration(0), timings.Chunk)
	assert.GreaterOrEqual(t, timings.Embed, time.Duration(0))
}

func TestProgressTracker_ErrorsAndWarnings(t *testing.T) {
	// Given
	p := NewProgressTracker()

	// When
	p.AddError(ErrorEvent{File: "a.exe", Err: errors.New("unsupported")})
	p.AddError(ErrorEvent{File: "b.png", Err: errors.New("no text"), IsWarn: true})
	p.AddError(ErrorEvent{File: "c.png", Err: errors.New("no text"), IsWarn: true})

	// Then
	stats := p.Stats()
	assert.Equal(t, 1, stats.ErrorCount)
	assert.Equal(t, 2, stats.WarnCount)
	assert.Len(t, p.Errors(), 1)
	assert.Len(t, p.Warnings(), 2)
}

func TestProgressTracker_ETA(t *testing.T) {
	// Given: a stage a quarter done after some time
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 100)
	time.Sleep(20 * time.Millisecond)
	p.Update(25, "")

	// When
	eta := p.Stats().ETA

	// Then: the remaining time is roughly three times the elapsed time
	assert.Greater(t, eta, time.Duration(0))
	assert.Greater(t, p.Elapsed(), time.Duration(0))
}
