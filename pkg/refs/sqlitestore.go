package refs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/atelier-ai/atelier/pkg/models"
)

// SQLiteStore keeps named references per user in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const createReferencesTable = `
CREATE TABLE IF NOT EXISTS references_ (
	user_id    TEXT NOT NULL,
	tag        TEXT NOT NULL,
	image_url  TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, tag)
);
`

// NewSQLiteStore opens the reference store and runs auto-migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open refs db: %w", err)
	}
	if _, err := db.Exec(createReferencesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate refs db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save registers or replaces a named reference for a user.
func (s *SQLiteStore) Save(ctx context.Context, userID, tag, imageURL string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO references_ (user_id, tag, image_url, created_at) VALUES (?, ?, ?, ?)`,
		userID, tag, imageURL, time.Now().UTC().Format("2006-01-02 15:04:05.000"),
	)
	if err != nil {
		return fmt.Errorf("save reference: %w", err)
	}
	return nil
}

// Resolve returns the references matching the given tags for a user. Tags
// with no match are simply absent from the result.
func (s *SQLiteStore) Resolve(ctx context.Context, userID string, tags []string) ([]models.ResolvedReference, error) {
	if len(tags) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(tags))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(tags)+1)
	args = append(args, userID)
	for _, t := range tags {
		args = append(args, t)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, image_url FROM references_ WHERE user_id = ? AND tag IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("resolve references: %w", err)
	}
	defer rows.Close()

	var refs []models.ResolvedReference
	for rows.Next() {
		var r models.ResolvedReference
		if err := rows.Scan(&r.Tag, &r.ImageURL); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// List returns all references for a user.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]models.ResolvedReference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag, image_url FROM references_ WHERE user_id = ? ORDER BY tag`, userID)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	defer rows.Close()

	var refs []models.ResolvedReference
	for rows.Next() {
		var r models.ResolvedReference
		if err := rows.Scan(&r.Tag, &r.ImageURL); err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// Delete removes a named reference. Deleting an absent tag is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, userID, tag string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM references_ WHERE user_id = ? AND tag = ?`, userID, tag)
	if err != nil {
		return fmt.Errorf("delete reference: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
