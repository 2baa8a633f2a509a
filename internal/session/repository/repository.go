package repository

import (
	"context"
	"time"

	"media-stream-auth/backend/internal/session/domain"
)

// Repository defines persistence for sessions. The in-memory ledger is the
// authority on liveness; this store exists for management reads and for
// best-effort reconciliation after a restart.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListAll returns every stored session. Used at startup to rebuild the ledger.
	ListAll(ctx context.Context) ([]*domain.Session, error)
	// List returns sessions filtered by token value and/or user, newest first.
	List(ctx context.Context, tokenValue, userID string, limit, offset int32) ([]*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// ExtendExpiry updates last_seen_at and expires_at for a refreshed session.
	ExtendExpiry(ctx context.Context, id string, lastSeenAt, expiresAt time.Time) error
	// Delete removes the session. Deleting a missing session is a no-op.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes all sessions with expires_at <= now and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
