package telemetry

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		buf.Add(q)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"q3", "q4", "q5"}, buf.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{100 * time.Millisecond, BucketP500},
		{700 * time.Millisecond, BucketP1000},
		{1500 * time.Millisecond, BucketP2000},
		{3 * time.Second, BucketP5000},
		{12 * time.Second, BucketP10000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"what", "the", "capital", "france"}, ExtractTerms("What is the capital of France?"))
	assert.Empty(t, ExtractTerms("  "))
}

func TestAskMetrics_Record(t *testing.T) {
	// Given
	m := NewAskMetrics(nil, Config{})

	// When
	m.Record(AskEvent{Question: "hello", Outcome: OutcomeGreeting})
	m.Record(AskEvent{Question: "river length", Outcome: OutcomeGrounded, Sources: 2, Latency: time.Second})
	m.Record(AskEvent{Question: "mars population", Outcome: OutcomeRefusal})
	m.Record(AskEvent{Question: "river source", Outcome: OutcomeGrounded})

	// Then
	s := m.Snapshot()
	assert.Equal(t, int64(4), s.Total)
	assert.Equal(t, int64(2), s.Outcomes[OutcomeGrounded])
	assert.Equal(t, []string{"mars population"}, s.RefusedQuestions)
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "river", Count: 2}, s.TopTerms[0])
	assert.InDelta(t, 1.0/3.0, s.RefusalRate(), 1e-9)
}

func TestAskMetrics_ConcurrentRecord(t *testing.T) {
	m := NewAskMetrics(nil, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(AskEvent{Question: "question", Outcome: OutcomeGrounded})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().Total)
}

func TestAskMetrics_FlushToSQLite(t *testing.T) {
	// Given
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	m := NewAskMetrics(store, Config{})

	// When
	m.Record(AskEvent{Question: "a question", Outcome: OutcomeGrounded})
	m.Record(AskEvent{Question: "another question", Outcome: OutcomeRefusal})
	require.NoError(t, m.Flush())
	m.Record(AskEvent{Question: "third question", Outcome: OutcomeGrounded})
	require.NoError(t, m.Close())

	// Then
	today := time.Now().Format(dateLayout)
	counts, err := store.OutcomeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[OutcomeGrounded])
	assert.Equal(t, int64(1), counts[OutcomeRefusal])

	m.Record(AskEvent{Question: "after close", Outcome: OutcomeGrounded})
	assert.Equal(t, int64(3), m.Snapshot().Total)
}

func TestSQLiteStore_Summary(t *testing.T) {
	// Given: counts saved today and ten days ago
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -10).Format(dateLayout)
	today := now.Format(dateLayout)
	require.NoError(t, store.SaveOutcomeCounts(old, map[Outcome]int64{OutcomeGrounded: 5}))
	require.NoError(t, store.SaveOutcomeCounts(today, map[Outcome]int64{OutcomeGrounded: 2, OutcomeRefusal: 1}))
	require.NoError(t, store.SaveOutcomeCounts(today, map[Outcome]int64{OutcomeGrounded: 1}))
	require.NoError(t, store.SaveLatencyCounts(today, map[LatencyBucket]int64{BucketP1000: 4}))

	// When: summarizing the last seven days
	snap, err := store.Summary(7, now)

	// Then: only the recent rows are summed
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Total)
	assert.Equal(t, int64(3), snap.Outcomes[OutcomeGrounded])
	assert.Equal(t, int64(4), snap.LatencyDistribution[BucketP1000])
	assert.Equal(t, "2026-03-09", snap.Since.Format(dateLayout))
	assert.InDelta(t, 0.25, snap.RefusalRate(), 0.001)

	// When: summarizing a wider window
	snap, err = store.Summary(30, now)

	// Then: the older day is included
	require.NoError(t, err)
	assert.Equal(t, int64(9), snap.Total)
}
