package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/web-terminal/backend/internal/model"
)

// HistoryRepository stores per-user interpreter command history.
type HistoryRepository struct {
	db    *sql.DB
	limit int
}

// NewHistoryRepository creates a HistoryRepository. limit caps the number
// of retained entries per user; older entries are trimmed first.
func NewHistoryRepository(db *sql.DB, limit int) *HistoryRepository {
	if limit <= 0 {
		limit = 2000
	}
	return &HistoryRepository{db: db, limit: limit}
}

// Append records an executed command line and trims the user's history
// to the configured limit.
func (r *HistoryRepository) Append(ctx context.Context, userID, line string) error {
	if line == "" {
		return nil
	}

	query := `INSERT INTO command_history (user_id, line) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, line); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}

	trim := `
		DELETE FROM command_history
		WHERE user_id = ? AND id NOT IN (
			SELECT id FROM command_history
			WHERE user_id = ?
			ORDER BY id DESC
			LIMIT ?
		)
	`
	if _, err := r.db.ExecContext(ctx, trim, userID, userID, r.limit); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

// List returns the user's history, oldest first.
func (r *HistoryRepository) List(ctx context.Context, userID string) ([]*model.HistoryEntry, error) {
	query := `
		SELECT id, user_id, line, created_at
		FROM command_history
		WHERE user_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*model.HistoryEntry
	for rows.Next() {
		entry := &model.HistoryEntry{}
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Line, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return entries, nil
}

// Clear removes a user's entire history.
func (r *HistoryRepository) Clear(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM command_history WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}
