// Package repository provides SQLite data access for sessions and history.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/web-terminal/backend/internal/model"
)

// SessionRepository provides data access for sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, name, command, workdir, env, status, exit_code, pid, recording_path, preview_line, created_at, updated_at, last_active_at`

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	envJSON, err := session.EnvToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize env: %w", err)
	}

	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Name,
		session.Command,
		session.Workdir,
		envJSON,
		session.Status,
		session.ExitCode,
		session.PID,
		session.RecordingPath,
		session.PreviewLine,
		session.CreatedAt,
		session.UpdatedAt,
		session.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func scanSession(scan func(dest ...interface{}) error) (*model.Session, error) {
	session := &model.Session{}
	var workdir, envJSON, previewLine sql.NullString
	var exitCode, pid sql.NullInt64

	err := scan(
		&session.ID,
		&session.UserID,
		&session.Name,
		&session.Command,
		&workdir,
		&envJSON,
		&session.Status,
		&exitCode,
		&pid,
		&session.RecordingPath,
		&previewLine,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.LastActiveAt,
	)
	if err != nil {
		return nil, err
	}

	if workdir.Valid {
		session.Workdir = workdir.String
	}
	if envJSON.Valid {
		if err := session.EnvFromJSON(envJSON.String); err != nil {
			return nil, fmt.Errorf("failed to parse env: %w", err)
		}
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		session.ExitCode = &code
	}
	if pid.Valid {
		p := int(pid.Int64)
		session.PID = &p
	}
	if previewLine.Valid {
		session.PreviewLine = previewLine.String
	}
	return session, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// List retrieves all sessions for a user, newest first.
func (r *SessionRepository) List(ctx context.Context, userID string) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// ListByStatus retrieves all sessions in the given status.
func (r *SessionRepository) ListByStatus(ctx context.Context, status model.SessionStatus) ([]*model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE status = ?`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by status: %w", err)
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// UpdateStatus updates the status and exit code of a session.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status model.SessionStatus, exitCode *int) error {
	query := `UPDATE sessions SET status = ?, exit_code = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, status, exitCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// UpdatePreviewLine updates the preview line of a session.
func (r *SessionRepository) UpdatePreviewLine(ctx context.Context, id string, previewLine string) error {
	query := `UPDATE sessions SET preview_line = ?, updated_at = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, previewLine, time.Now(), id); err != nil {
		return fmt.Errorf("failed to update preview line: %w", err)
	}
	return nil
}

// TouchActivity records traffic on a session for idle tracking.
func (r *SessionRepository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE sessions SET last_active_at = ? WHERE id = ?`

	if _, err := r.db.ExecContext(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to touch session activity: %w", err)
	}
	return nil
}

// CountActiveByUser returns the number of running sessions for a user.
func (r *SessionRepository) CountActiveByUser(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE user_id = ? AND status = ?`

	var count int
	err := r.db.QueryRowContext(ctx, query, userID, model.SessionStatusRunning).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}
