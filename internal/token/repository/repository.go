package repository

import (
	"context"

	"media-stream-auth/backend/internal/token/domain"
)

// Repository defines persistence for tokens.
type Repository interface {
	// GetByValue returns the token with the given value, or nil if not found.
	GetByValue(ctx context.Context, value string) (*domain.Token, error)
	// List returns tokens, optionally filtered by status, paginated by limit and offset.
	List(ctx context.Context, status *domain.TokenStatus, limit, offset int32) ([]*domain.Token, error)
	Create(ctx context.Context, t *domain.Token) error
	Update(ctx context.Context, t *domain.Token) error
	// Delete removes the token. Returns (false, nil) when no such token exists.
	Delete(ctx context.Context, value string) (bool, error)
}
