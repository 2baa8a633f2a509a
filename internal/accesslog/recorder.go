// Package accesslog records one audit entry per authorization decision.
package accesslog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-stream-auth/backend/internal/accesslog/domain"
	"media-stream-auth/backend/internal/accesslog/repository"
)

// recordTimeout is the max time allowed for a single async write.
const recordTimeout = 5 * time.Second

// Recorder writes a single access-log entry. Record is best-effort: it must
// never block or fail the decision path; storage failures are logged and
// swallowed, never surfaced as a denial.
type Recorder interface {
	Record(ctx context.Context, e *domain.Entry)
}

// AsyncRecorder persists entries through the repository in a goroutine so the
// decision path is not charged for the write.
type AsyncRecorder struct {
	repo repository.Repository
	log  zerolog.Logger
}

// NewAsyncRecorder returns a Recorder that persists to repo.
func NewAsyncRecorder(repo repository.Repository, log zerolog.Logger) *AsyncRecorder {
	return &AsyncRecorder{repo: repo, log: log}
}

// Record assigns the entry an ID and timestamp if missing and persists it
// asynchronously. The goroutine detaches from ctx so a request timeout does
// not abort an in-flight write.
func (r *AsyncRecorder) Record(ctx context.Context, e *domain.Entry) {
	if r.repo == nil || e == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	go func() {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if err := r.repo.Create(wctx, e); err != nil {
			r.log.Error().Err(err).
				Str("token", e.TokenValue).
				Str("reason", e.Reason).
				Msg("failed to persist access-log entry")
		}
	}()
}

// NoopRecorder discards every entry. Used when access logging is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() NoopRecorder { return NoopRecorder{} }

func (NoopRecorder) Record(ctx context.Context, e *domain.Entry) {}
