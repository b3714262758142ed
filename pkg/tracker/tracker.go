// Package tracker records routing decisions and aggregates them for the
// success-rate dashboards the engine is accountable to.
package tracker

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Tracker records and queries routing decisions.
type Tracker interface {
	// Record stores one routing decision.
	Record(ctx context.Context, rec models.RouteDecisionRecord) error
	// Summary returns aggregated decisions, optionally filtered by user.
	Summary(ctx context.Context, userID string) ([]models.RouteSummary, error)
	// MethodCounts returns how many decisions each method produced since a
	// given time.
	MethodCounts(ctx context.Context, since time.Time) (map[models.RouteMethod]int64, error)
	// ResolveSession returns a session ID for the user, reusing the most
	// recent session when it is within gapTimeout.
	ResolveSession(ctx context.Context, userID, explicitID string, gapTimeout time.Duration) (string, error)
	// ListSessions returns all sessions, optionally filtered by user.
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	// Close releases resources.
	Close() error
}

// sqliteTime is the stored timestamp layout. Fixed width keeps lexical
// order chronological so ORDER BY and range filters on the column work.
const sqliteTime = "2006-01-02 15:04:05.000"

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

// SQLiteTracker implements Tracker with a SQLite database.
type SQLiteTracker struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS route_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	generation_type TEXT NOT NULL,
	model TEXT NOT NULL,
	method TEXT NOT NULL,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_user_time ON route_decisions(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_method ON route_decisions(method);
`

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	last_activity DATETIME NOT NULL,
	request_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`

// New creates a SQLiteTracker and runs auto-migration.
func New(dbPath string) (*SQLiteTracker, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open tracker db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate tracker db: %w", err)
	}
	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sessions table: %w", err)
	}

	return &SQLiteTracker{db: db}, nil
}

// generateSessionID creates a session ID like sess_20260828_a3f9c2.
func generateSessionID() string {
	b := make([]byte, 3)
	rand.Read(b)
	return fmt.Sprintf("sess_%s_%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(b))
}

// Record stores a routing decision and updates session counters.
func (t *SQLiteTracker) Record(ctx context.Context, rec models.RouteDecisionRecord) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO route_decisions (user_id, session_id, generation_type, model, method, cache_hit, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.SessionID, string(rec.GenerationType), rec.Model, string(rec.Method),
		rec.CacheHit, rec.LatencyMs, rec.CreatedAt.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}

	if rec.SessionID != "" {
		_, err = t.db.ExecContext(ctx,
			`UPDATE sessions SET last_activity = ?, request_count = request_count + 1 WHERE id = ?`,
			rec.CreatedAt.UTC().Format(sqliteTime), rec.SessionID,
		)
		if err != nil {
			return fmt.Errorf("update session counters: %w", err)
		}
	}
	return nil
}

// ResolveSession returns a session ID. If explicitID is non-empty, it
// ensures the session row exists and returns it. Otherwise it reuses the
// user's most recent session if within gapTimeout, or creates a new one.
func (t *SQLiteTracker) ResolveSession(ctx context.Context, userID, explicitID string, gapTimeout time.Duration) (string, error) {
	now := time.Now().UTC()
	nowText := now.Format(sqliteTime)

	if explicitID != "" {
		_, err := t.db.ExecContext(ctx,
			`INSERT INTO sessions (id, user_id, started_at, last_activity) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			explicitID, userID, nowText, nowText,
		)
		if err != nil {
			return "", fmt.Errorf("ensure session: %w", err)
		}
		return explicitID, nil
	}

	var lastID, lastActivity string
	err := t.db.QueryRowContext(ctx,
		`SELECT id, last_activity FROM sessions WHERE user_id = ? ORDER BY last_activity DESC LIMIT 1`,
		userID,
	).Scan(&lastID, &lastActivity)

	if err == nil && now.Sub(parseSQLiteTime(lastActivity)) <= gapTimeout {
		return lastID, nil
	}

	newID := generateSessionID()
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, started_at, last_activity) VALUES (?, ?, ?, ?)`,
		newID, userID, nowText, nowText,
	)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return newID, nil
}

// ListSessions returns all sessions, optionally filtered by user.
func (t *SQLiteTracker) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	query := `SELECT id, user_id, started_at, last_activity, request_count FROM sessions`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var started, lastActivity string
		if err := rows.Scan(&s.ID, &s.UserID, &started, &lastActivity, &s.RequestCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = parseSQLiteTime(started)
		s.LastActivity = parseSQLiteTime(lastActivity)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Summary aggregates decisions grouped by user, method and model.
func (t *SQLiteTracker) Summary(ctx context.Context, userID string) ([]models.RouteSummary, error) {
	query := `SELECT user_id, method, model, COUNT(*), SUM(cache_hit), CAST(AVG(latency_ms) AS INTEGER)
		 FROM route_decisions`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` GROUP BY user_id, method, model ORDER BY user_id, method, model`

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.RouteSummary
	for rows.Next() {
		var s models.RouteSummary
		var method string
		if err := rows.Scan(&s.UserID, &method, &s.Model, &s.RequestCount, &s.CacheHits, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		s.Method = models.RouteMethod(method)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// MethodCounts returns decision counts per method since a given time.
func (t *SQLiteTracker) MethodCounts(ctx context.Context, since time.Time) (map[models.RouteMethod]int64, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT method, COUNT(*) FROM route_decisions WHERE created_at >= ? GROUP BY method`,
		since.UTC().Format(sqliteTime),
	)
	if err != nil {
		return nil, fmt.Errorf("method counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RouteMethod]int64)
	for rows.Next() {
		var method string
		var n int64
		if err := rows.Scan(&method, &n); err != nil {
			return nil, fmt.Errorf("scan method count: %w", err)
		}
		counts[models.RouteMethod(method)] = n
	}
	return counts, rows.Err()
}

// Close releases the database connection.
func (t *SQLiteTracker) Close() error {
	return t.db.Close()
}
