package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"media-stream-auth/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, token_value, user_id, stream_name, client_ip, protocol,
	started_at, last_seen_at, expires_at`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListAll returns every stored session. Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// List returns sessions newest first, filtered by token value and/or user when non-empty.
func (r *PostgresRepository) List(ctx context.Context, tokenValue, userID string, limit, offset int32) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE ($1 = '' OR token_value = $1) AND ($2 = '' OR user_id = $2)
		 ORDER BY started_at DESC LIMIT $3 OFFSET $4`,
		tokenValue, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// Create persists the session. An existing row with the same id is replaced;
// the deterministic session id makes re-admission after a lost delete benign.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET
		   started_at = EXCLUDED.started_at,
		   last_seen_at = EXCLUDED.last_seen_at,
		   expires_at = EXCLUDED.expires_at`,
		s.ID, s.TokenValue, s.UserID, s.StreamName, s.ClientIP, s.Protocol,
		s.StartedAt, s.LastSeenAt, s.ExpiresAt)
	return err
}

// ExtendExpiry updates last_seen_at and expires_at for a refreshed session.
func (r *PostgresRepository) ExtendExpiry(ctx context.Context, id string, lastSeenAt, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = $2, expires_at = $3 WHERE id = $1`,
		id, lastSeenAt, expiresAt)
	return err
}

// Delete removes the session with the given id. Missing rows are a no-op.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteExpired removes all sessions with expires_at <= now and returns the count.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.TokenValue, &s.UserID, &s.StreamName, &s.ClientIP, &s.Protocol,
		&s.StartedAt, &s.LastSeenAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]*domain.Session, error) {
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
