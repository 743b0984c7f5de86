// Package telemetry records question-answering patterns.
// All telemetry data is stored locally - no external reporting.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Outcomes
// =============================================================================

// Outcome classifies how a question was answered.
type Outcome string

// dateLayout keys the daily rows of the persistent store.
const dateLayout = "2006-01-02"

const (
	OutcomeGreeting Outcome = "greeting"
	OutcomeGrounded Outcome = "grounded"
	OutcomeRefusal  Outcome = "refusal"
	OutcomeError    Outcome = "error"
)

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP500   LatencyBucket = "p500"   // <500ms
	BucketP1000  LatencyBucket = "p1000"  // 500ms-1s
	BucketP2000  LatencyBucket = "p2000"  // 1-2s
	BucketP5000  LatencyBucket = "p5000"  // 2-5s
	BucketP10000 LatencyBucket = "p10000" // >=5s
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 500:
		return BucketP500
	case ms < 1000:
		return BucketP1000
	case ms < 2000:
		return BucketP2000
	case ms < 5000:
		return BucketP5000
	default:
		return BucketP10000
	}
}

// AskEvent is one answered question.
type AskEvent struct {
	Question  string
	Outcome   Outcome
	Sources   int
	Latency   time.Duration
	Timestamp time.Time
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms returns lowercased terms of at least three letters.
func ExtractTerms(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	terms := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// TermCount is a term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Total               int64                   `json:"total"`
	Outcomes            map[Outcome]int64       `json:"outcomes"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency"`
	TopTerms            []TermCount             `json:"top_terms"`
	RefusedQuestions    []string                `json:"refused_questions"`
	Since               time.Time               `json:"since"`
}

// RefusalRate is the share of non-greeting questions that were refused.
func (s *Snapshot) RefusalRate() float64 {
	asked := s.Total - s.Outcomes[OutcomeGreeting]
	if asked <= 0 {
		return 0
	}
	return float64(s.Outcomes[OutcomeRefusal]) / float64(asked)
}

// Store persists aggregated metrics.
type Store interface {
	SaveOutcomeCounts(date string, counts map[Outcome]int64) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
}

// Config configures an AskMetrics collector.
type Config struct {
	TopTermsCapacity int // default 100
	RefusedCapacity  int // default 50
}

// AskMetrics collects answering telemetry. Safe for concurrent use.
type AskMetrics struct {
	mu sync.Mutex

	outcomes  map[Outcome]int64
	latencies map[LatencyBucket]int64
	topTerms  *lru.Cache[string, int64]
	refused   *CircularBuffer[string]
	total     int64
	start     time.Time

	// pending holds counts not yet flushed to store.
	pendingOutcomes  map[Outcome]int64
	pendingLatencies map[LatencyBucket]int64

	store  Store
	closed bool
}

// NewAskMetrics creates a collector. A nil store keeps metrics in memory.
func NewAskMetrics(store Store, cfg Config) *AskMetrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.RefusedCapacity <= 0 {
		cfg.RefusedCapacity = 50
	}
	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)

	return &AskMetrics{
		outcomes:         make(map[Outcome]int64),
		latencies:        make(map[LatencyBucket]int64),
		topTerms:         topTerms,
		refused:          NewCircularBuffer[string](cfg.RefusedCapacity),
		start:            time.Now(),
		pendingOutcomes:  make(map[Outcome]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		store:            store,
	}
}

// Record captures one answered question.
func (m *AskMetrics) Record(e AskEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	m.outcomes[e.Outcome]++
	m.pendingOutcomes[e.Outcome]++

	bucket := LatencyToBucket(e.Latency)
	m.latencies[bucket]++
	m.pendingLatencies[bucket]++

	if e.Outcome == OutcomeGreeting {
		return
	}
	for _, term := range ExtractTerms(e.Question) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
	if e.Outcome == OutcomeRefusal {
		m.refused.Add(e.Question)
	}
}

// Snapshot returns the current metrics.
func (m *AskMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	outcomes := make(map[Outcome]int64, len(m.outcomes))
	for k, v := range m.outcomes {
		outcomes[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	var terms []TermCount
	for _, k := range m.topTerms.Keys() {
		if c, ok := m.topTerms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: c})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool { return terms[i].Count > terms[j].Count })

	return &Snapshot{
		Total:               m.total,
		Outcomes:            outcomes,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		RefusedQuestions:    m.refused.Items(),
		Since:               m.start,
	}
}

// Flush writes counts recorded since the last flush to the store.
func (m *AskMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	outcomes, latencies := m.pendingOutcomes, m.pendingLatencies
	m.pendingOutcomes = make(map[Outcome]int64)
	m.pendingLatencies = make(map[LatencyBucket]int64)
	m.mu.Unlock()

	today := time.Now().Format(dateLayout)
	if err := m.store.SaveOutcomeCounts(today, outcomes); err != nil {
		return err
	}
	return m.store.SaveLatencyCounts(today, latencies)
}

// Close flushes and stops recording.
func (m *AskMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	return m.Flush()
}
