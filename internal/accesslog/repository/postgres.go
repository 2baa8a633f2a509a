package repository

import (
	"context"
	"database/sql"

	"media-stream-auth/backend/internal/accesslog/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an access-log repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create appends one access-log entry.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	uid := sql.NullString{String: e.UserID, Valid: e.UserID != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_logs (id, token_value, user_id, stream_name, client_ip, protocol, result, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.TokenValue, uid, e.StreamName, e.ClientIP, e.Protocol, string(e.Result), e.Reason, e.CreatedAt)
	return err
}

// List returns entries newest first, optionally filtered by token value and/or result.
func (r *PostgresRepository) List(ctx context.Context, tokenValue string, result *domain.Result, limit, offset int32) ([]*domain.Entry, error) {
	res := ""
	if result != nil {
		res = string(*result)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, token_value, user_id, stream_name, client_ip, protocol, result, reason, created_at
		 FROM access_logs
		 WHERE ($1 = '' OR token_value = $1) AND ($2 = '' OR result = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		tokenValue, res, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var (
			e   domain.Entry
			uid sql.NullString
			res string
		)
		if err := rows.Scan(&e.ID, &e.TokenValue, &uid, &e.StreamName, &e.ClientIP, &e.Protocol,
			&res, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID = uid.String
		e.Result = domain.Result(res)
		out = append(out, &e)
	}
	return out, rows.Err()
}
