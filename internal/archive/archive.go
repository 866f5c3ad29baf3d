package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/hashdeck/hashdeck/internal/models"
	"github.com/hashdeck/hashdeck/pkg/debug"
	"github.com/robfig/cron/v3"

	_ "modernc.org/sqlite"
)

// Summary is one finished session's final aggregates, written exactly once
// from the session's exit handler.
type Summary struct {
	ID          string
	Name        string
	StartedAt   time.Time
	Duration    float64
	Recovered   int
	Total       int
	AvgHashrate float64
	AvgPower    float64
	Status      models.SessionStatus
}

const schema = `
CREATE TABLE IF NOT EXISTS session_history (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	started_at    TIMESTAMP NOT NULL,
	duration_secs REAL NOT NULL,
	recovered     INTEGER NOT NULL,
	total         INTEGER NOT NULL,
	avg_hashrate  REAL NOT NULL,
	avg_power     REAL NOT NULL,
	status        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_history_started_at ON session_history(started_at);
`

// Store keeps finished-session summaries in a local sqlite database
type Store struct {
	db   *sql.DB
	cron *cron.Cron
}

// Open opens or creates the archive database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}

	debug.Info("Session archive opened at %s", path)
	return &Store{db: db}, nil
}

// Record inserts one finished-session summary
func (s *Store) Record(sum Summary) error {
	_, err := s.db.Exec(`
		INSERT INTO session_history
			(id, name, started_at, duration_secs, recovered, total, avg_hashrate, avg_power, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Name, sum.StartedAt.UTC(), sum.Duration, sum.Recovered,
		sum.Total, sum.AvgHashrate, sum.AvgPower, string(sum.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to record session summary: %w", err)
	}
	return nil
}

// List returns the most recent summaries, newest first
func (s *Store) List(limit int) ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, name, started_at, duration_secs, recovered, total, avg_hashrate, avg_power, status
		FROM session_history
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session history: %w", err)
	}
	defer rows.Close()

	var sums []Summary
	for rows.Next() {
		var sum Summary
		var status string
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.StartedAt, &sum.Duration,
			&sum.Recovered, &sum.Total, &sum.AvgHashrate, &sum.AvgPower, &status); err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		sum.Status = models.SessionStatus(status)
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// Prune deletes summaries older than maxAge and returns the number removed
func (s *Store) Prune(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC()
	res, err := s.db.Exec(`DELETE FROM session_history WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune session history: %w", err)
	}
	return res.RowsAffected()
}

// StartRetention schedules a nightly prune of summaries older than maxAge
func (s *Store) StartRetention(maxAge time.Duration) {
	s.cron = cron.New()
	s.cron.AddFunc("0 3 * * *", func() {
		removed, err := s.Prune(maxAge)
		if err != nil {
			debug.Error("Archive retention run failed: %v", err)
			return
		}
		debug.Info("Archive retention removed %d session rows", removed)
	})
	s.cron.Start()
	debug.Info("Archive retention scheduled, max age: %v", maxAge)
}

// Close stops retention and closes the database
func (s *Store) Close() error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.db.Close()
}
