package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"media-stream-auth/backend/internal/token/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `value, user_id, status, valid_from, valid_until, max_sessions,
	allowed_ips, allowed_streams, metadata, created_at, updated_at`

// GetByValue returns the token with the given value, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByValue(ctx context.Context, value string) (*domain.Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE value = $1`, value)
	t, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// List returns tokens ordered by creation time, optionally filtered by status,
// paginated by limit and offset. Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context, status *domain.TokenStatus, limit, offset int32) ([]*domain.Token, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+tokenColumns+` FROM tokens WHERE status = $1
			 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, string(*status), limit, offset)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+tokenColumns+` FROM tokens
			 ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create persists the token to the database. The token must have Value set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	ips, streams, meta, err := marshalPolicy(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tokens (`+tokenColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		t.Value, t.UserID, string(t.Status),
		timeToNullTime(t.ValidFrom), timeToNullTime(t.ValidUntil), intToNullInt32(t.MaxSessions),
		ips, streams, meta, t.CreatedAt, t.UpdatedAt)
	return err
}

// Update rewrites the token record. The Value column is the immutable key.
func (r *PostgresRepository) Update(ctx context.Context, t *domain.Token) error {
	ips, streams, meta, err := marshalPolicy(t)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE tokens SET user_id = $2, status = $3, valid_from = $4, valid_until = $5,
		 max_sessions = $6, allowed_ips = $7, allowed_streams = $8, metadata = $9, updated_at = $10
		 WHERE value = $1`,
		t.Value, t.UserID, string(t.Status),
		timeToNullTime(t.ValidFrom), timeToNullTime(t.ValidUntil), intToNullInt32(t.MaxSessions),
		ips, streams, meta, t.UpdatedAt)
	return err
}

// Delete removes the token with the given value. Returns (false, nil) when no row matched.
func (r *PostgresRepository) Delete(ctx context.Context, value string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE value = $1`, value)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*domain.Token, error) {
	var (
		t           domain.Token
		status      string
		validFrom   sql.NullTime
		validUntil  sql.NullTime
		maxSessions sql.NullInt32
		ips         []byte
		streams     []byte
		meta        []byte
	)
	if err := row.Scan(&t.Value, &t.UserID, &status, &validFrom, &validUntil, &maxSessions,
		&ips, &streams, &meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = domain.TokenStatus(status)
	t.ValidFrom = nullTimeToTime(validFrom)
	t.ValidUntil = nullTimeToTime(validUntil)
	if maxSessions.Valid {
		n := int(maxSessions.Int32)
		t.MaxSessions = &n
	}
	if err := json.Unmarshal(ips, &t.AllowedIPs); err != nil {
		return nil, fmt.Errorf("decode allowed_ips for token %s: %w", t.Value, err)
	}
	if err := json.Unmarshal(streams, &t.AllowedStreams); err != nil {
		return nil, fmt.Errorf("decode allowed_streams for token %s: %w", t.Value, err)
	}
	if err := json.Unmarshal(meta, &t.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata for token %s: %w", t.Value, err)
	}
	return &t, nil
}

func marshalPolicy(t *domain.Token) (ips, streams, meta []byte, err error) {
	if ips, err = json.Marshal(emptyIfNil(t.AllowedIPs)); err != nil {
		return nil, nil, nil, err
	}
	if streams, err = json.Marshal(emptyIfNil(t.AllowedStreams)); err != nil {
		return nil, nil, nil, err
	}
	m := t.Metadata
	if m == nil {
		m = map[string]string{}
	}
	if meta, err = json.Marshal(m); err != nil {
		return nil, nil, nil, err
	}
	return ips, streams, meta, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func intToNullInt32(n *int) sql.NullInt32 {
	if n == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: int32(*n), Valid: true}
}
