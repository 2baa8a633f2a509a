package repository

import (
	"context"

	"media-stream-auth/backend/internal/accesslog/domain"
)

// Repository defines persistence for access-log entries. Append-only; the
// core never updates or deletes entries (retention is an external concern).
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	// List returns entries newest first, optionally filtered by token value
	// and/or result, paginated by limit and offset.
	List(ctx context.Context, tokenValue string, result *domain.Result, limit, offset int32) ([]*domain.Entry, error)
}
