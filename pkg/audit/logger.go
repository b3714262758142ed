// Package audit is the observability sink: one record per routing decision,
// queryable by the dashboards that track LLM versus fallback rates.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelier-ai/atelier/pkg/models"
)

// sqliteTime is the stored timestamp layout. Fixed width keeps lexical
// order chronological and keeps date() grouping working on the column.
const sqliteTime = "2006-01-02 15:04:05.000"

func parseSQLiteTime(s string) time.Time {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

// Logger writes and queries route records in a dedicated SQLite database.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
}

// New opens the audit database and creates the schema.
func New(dbPath string, cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS route_log (
		request_id      TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		session_id      TEXT,
		prompt          TEXT,
		enhanced_prompt TEXT,
		generation_type TEXT NOT NULL,
		model           TEXT NOT NULL,
		provider        TEXT,
		method          TEXT NOT NULL,
		reasoning       TEXT,
		cache_hit       INTEGER NOT NULL DEFAULT 0,
		breaker_state   TEXT,
		latency_ms      INTEGER,
		created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_route_log_method ON route_log(method)`); err != nil {
		return err
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_route_log_created ON route_log(created_at)`); err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_route_log_user ON route_log(user_id)`)
	return err
}

// Log inserts a route record, respecting include configuration.
func (l *Logger) Log(ctx context.Context, rec models.RouteRecord) error {
	if l == nil || l.db == nil {
		return nil
	}

	prompt := rec.Prompt
	enhanced := rec.EnhancedPrompt
	reasoning := rec.Reasoning

	if !l.include["prompts"] {
		prompt = ""
		enhanced = ""
	}
	if !l.include["reasoning"] {
		reasoning = ""
	}
	if l.cfg.MaxBodySize > 0 {
		if len(prompt) > l.cfg.MaxBodySize {
			prompt = prompt[:l.cfg.MaxBodySize]
		}
		if len(enhanced) > l.cfg.MaxBodySize {
			enhanced = enhanced[:l.cfg.MaxBodySize]
		}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO route_log
		(request_id, user_id, session_id, prompt, enhanced_prompt, generation_type,
		 model, provider, method, reasoning, cache_hit, breaker_state, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.UserID, rec.SessionID, prompt, enhanced, string(rec.GenerationType),
		rec.Model, rec.Provider, string(rec.Method), reasoning, rec.CacheHit,
		rec.BreakerState, rec.LatencyMs, rec.CreatedAt.UTC().Format(sqliteTime),
	)
	return err
}

// Query returns route records matching the given options.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.RouteRecord, error) {
	q := `SELECT request_id, user_id, session_id, prompt, enhanced_prompt, generation_type,
		model, provider, method, reasoning, cache_hit, breaker_state, latency_ms, created_at
		FROM route_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.UserID != "" {
		q += " AND user_id = ?"
		args = append(args, opts.UserID)
	}
	if opts.Method != "" {
		q += " AND method = ?"
		args = append(args, string(opts.Method))
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC().Format(sqliteTime))
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var records []models.RouteRecord
	for rows.Next() {
		var r models.RouteRecord
		var genType, method, createdAt string
		var sessionID, prompt, enhanced, provider, reasoning, breakerState sql.NullString
		if err := rows.Scan(
			&r.RequestID, &r.UserID, &sessionID, &prompt, &enhanced, &genType,
			&r.Model, &provider, &method, &reasoning, &r.CacheHit,
			&breakerState, &r.LatencyMs, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		r.CreatedAt = parseSQLiteTime(createdAt)
		r.SessionID = sessionID.String
		r.Prompt = prompt.String
		r.EnhancedPrompt = enhanced.String
		r.Provider = provider.String
		r.Reasoning = reasoning.String
		r.BreakerState = breakerState.String
		r.GenerationType = models.GenerationType(genType)
		r.Method = models.RouteMethod(method)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Stats returns aggregate counts grouped by method and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT method, date(created_at) as day, count(*) as cnt
		 FROM route_log GROUP BY method, day ORDER BY day DESC, method`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var method string
		var day sql.NullString
		if err := rows.Scan(&method, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Method = models.RouteMethod(method)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes records older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays).UTC().Format(sqliteTime)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM route_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
