package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the telemetry database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open telemetry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	-- Answer outcomes (aggregated daily)
	CREATE TABLE IF NOT EXISTS ask_outcome_stats (
		date TEXT NOT NULL,
		outcome TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, outcome)
	);

	-- Latency histogram
	CREATE TABLE IF NOT EXISTS ask_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// SaveOutcomeCounts adds counts to the daily outcome totals.
func (s *SQLiteStore) SaveOutcomeCounts(date string, counts map[Outcome]int64) error {
	return upsertDaily(s.db, `
		INSERT INTO ask_outcome_stats (date, outcome, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, outcome) DO UPDATE SET count = count + excluded.count
	`, date, toStrings(counts))
}

// SaveLatencyCounts adds counts to the daily latency histogram.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	return upsertDaily(s.db, `
		INSERT INTO ask_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`, date, toStrings(counts))
}

// OutcomeCounts sums outcome counts between two dates, inclusive.
func (s *SQLiteStore) OutcomeCounts(from, to string) (map[Outcome]int64, error) {
	return sumDaily[Outcome](s.db, `
		SELECT outcome, SUM(count)
		FROM ask_outcome_stats
		WHERE date >= ? AND date <= ?
		GROUP BY outcome
	`, from, to)
}

// LatencyCounts sums the latency histogram between two dates, inclusive.
func (s *SQLiteStore) LatencyCounts(from, to string) (map[LatencyBucket]int64, error) {
	return sumDaily[LatencyBucket](s.db, `
		SELECT bucket, SUM(count)
		FROM ask_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
}

// Summary builds a snapshot of the persisted counts for the last days days,
// today included. Terms and refused questions are not persisted and stay empty.
func (s *SQLiteStore) Summary(days int, now time.Time) (*Snapshot, error) {
	if days < 1 {
		days = 1
	}
	since := now.AddDate(0, 0, -(days - 1))
	from, to := since.Format(dateLayout), now.Format(dateLayout)

	outcomes, err := s.OutcomeCounts(from, to)
	if err != nil {
		return nil, err
	}
	latency, err := s.LatencyCounts(from, to)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Outcomes:            outcomes,
		LatencyDistribution: latency,
		TopTerms:            []TermCount{},
		RefusedQuestions:    []string{},
		Since:               time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, since.Location()),
	}
	for _, n := range outcomes {
		snap.Total += n
	}
	return snap, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func upsertDaily(db *sql.DB, query, date string, counts map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for k, n := range counts {
		if _, err := stmt.Exec(date, k, n); err != nil {
			return fmt.Errorf("upsert count: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toStrings[K ~string](m map[K]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

func sumDaily[K ~string](db *sql.DB, query, from, to string) (map[K]int64, error) {
	rows, err := db.Query(query, from, to)
	if err != nil {
		return nil, fmt.Errorf("query daily counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[K]int64)
	for rows.Next() {
		var k string
		var n int64
		if err := rows.Scan(&k, &n); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[K(k)] = n
	}
	return counts, rows.Err()
}
