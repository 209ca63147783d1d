package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shohag/pushrelay/internal/models"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS feedback (
			id TEXT PRIMARY KEY,
			token TEXT NOT NULL UNIQUE,
			reported_at DATETIME NOT NULL,
			received_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_reported ON feedback(reported_at)`,
	}

	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- Feedback ---

// SaveFeedback records a token, keeping one row per token with the latest
// report time.
func (s *SQLiteStorage) SaveFeedback(ctx context.Context, rec models.FeedbackRecord) (*models.StoredFeedback, error) {
	token := hex.EncodeToString(rec.Token)
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (id, token, reported_at, received_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET reported_at = excluded.reported_at, received_at = excluded.received_at`,
		models.NewID("fb"), token, rec.Time(), now,
	)
	if err != nil {
		return nil, err
	}
	return s.GetFeedback(ctx, token)
}

func (s *SQLiteStorage) GetFeedback(ctx context.Context, token string) (*models.StoredFeedback, error) {
	var f models.StoredFeedback
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token, reported_at, received_at FROM feedback WHERE token = ?`, token,
	).Scan(&f.ID, &f.Token, &f.ReportedAt, &f.ReceivedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *SQLiteStorage) ListFeedback(ctx context.Context, limit, offset int) ([]models.StoredFeedback, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token, reported_at, received_at FROM feedback ORDER BY reported_at DESC, token LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StoredFeedback
	for rows.Next() {
		var f models.StoredFeedback
		if err := rows.Scan(&f.ID, &f.Token, &f.ReportedAt, &f.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) DeleteFeedback(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM feedback WHERE token = ?`, token)
	return err
}

// --- Stats ---

func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	since := time.Now().UTC().Add(-24 * time.Hour)

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&stats.TotalTokens)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM feedback WHERE reported_at >= ?`, since,
	).Scan(&stats.ReportedLast24h)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
