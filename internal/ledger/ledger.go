// Package ledger tracks live streaming sessions and enforces per-token
// concurrency caps. The in-memory state is the authority on liveness; the
// session repository is written through for management reads and restart
// reconciliation.
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"media-stream-auth/backend/internal/session/domain"
	"media-stream-auth/backend/internal/session/repository"
)

// persistTimeout bounds one write-through to the session repository. Writes run
// on a context detached from the request so a caller timeout cannot undo a
// committed admission.
const persistTimeout = 2 * time.Second

// Candidate identifies one admission attempt. The session ID is derived from
// the tuple, so a repeat request maps onto the existing session.
type Candidate struct {
	TokenValue string
	UserID     string
	StreamName string
	ClientIP   string
	Protocol   string
}

// Admission is the outcome of AdmitOrRefresh.
type Admission struct {
	Session    *domain.Session
	Refreshed  bool // existing live session extended instead of created
	AtCapacity bool // denied: the token is at its concurrent-session cap
	Live       int  // live sessions for the token after the operation
}

// Filter narrows ListLive results. Zero values match everything.
type Filter struct {
	TokenValue string
	UserID     string
}

// tokenLock serializes admission decisions for one token. refs counts waiters
// so the entry can be dropped once nobody holds or wants it.
type tokenLock struct {
	mu   sync.Mutex
	refs int
}

// Ledger is safe for concurrent use. Admissions for the same token serialize
// on a per-token lock; distinct tokens do not block each other.
type Ledger struct {
	repo repository.Repository // nil disables write-through (tests)
	log  zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*domain.Session            // session id -> session
	byToken  map[string]map[string]*domain.Session // token value -> session id -> session
	locks    map[string]*tokenLock
}

// New returns an empty ledger. repo may be nil for a purely in-memory ledger.
func New(repo repository.Repository, log zerolog.Logger) *Ledger {
	return &Ledger{
		repo:     repo,
		log:      log,
		sessions: make(map[string]*domain.Session),
		byToken:  make(map[string]map[string]*domain.Session),
		locks:    make(map[string]*tokenLock),
	}
}

// Load rebuilds the in-memory state from storage, dropping rows whose lease
// already elapsed. Called once at startup before the ledger serves traffic.
func (l *Ledger) Load(ctx context.Context, now time.Time) (int, error) {
	if l.repo == nil {
		return 0, nil
	}
	stored, err := l.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	loaded := 0
	for _, s := range stored {
		if s.Expired(now) {
			continue
		}
		l.insertLocked(s)
		loaded++
	}
	return loaded, nil
}

// AdmitOrRefresh performs the atomic compound admission step: refresh a
// matching live session, or count live sessions for the token and admit a new
// one when under maxSessions (0 = unlimited), or report at-capacity. The whole
// step runs under the token's lock so concurrent requests for one token cannot
// overshoot the cap.
//
// A storage failure while persisting a new session rolls the admission back
// and is returned to the caller (the engine fails closed). A failure while
// persisting a refresh is logged and swallowed: the session is already live
// and in-memory state is the authority.
func (l *Ledger) AdmitOrRefresh(ctx context.Context, cand Candidate, maxSessions int, ttl time.Duration, now time.Time) (Admission, error) {
	id := domain.SessionID(cand.StreamName, cand.ClientIP, cand.TokenValue, cand.Protocol)

	unlock := l.lockToken(cand.TokenValue)
	defer unlock()

	expiresAt := now.Add(ttl)

	l.mu.Lock()
	existing := l.sessions[id]
	l.mu.Unlock()

	if existing != nil && !existing.Expired(now) {
		// Re-check from the streaming server: extend the lease, keep StartedAt.
		l.mu.Lock()
		existing.LastSeenAt = now
		existing.ExpiresAt = expiresAt
		snapshot := *existing
		live := l.countLiveLocked(cand.TokenValue, now)
		l.mu.Unlock()

		if l.repo != nil {
			pctx, cancel := detach(ctx)
			if err := l.repo.ExtendExpiry(pctx, id, now, expiresAt); err != nil {
				l.log.Error().Err(err).Str("session_id", id).Msg("failed to persist session refresh")
			}
			cancel()
		}
		return Admission{Session: &snapshot, Refreshed: true, Live: live}, nil
	}

	l.mu.Lock()
	// An expired entry the sweeper has not reached yet does not count against
	// the cap and is replaced on admission.
	if existing != nil {
		l.removeLocked(existing)
	}
	live := l.countLiveLocked(cand.TokenValue, now)
	if maxSessions > 0 && live >= maxSessions {
		l.mu.Unlock()
		return Admission{AtCapacity: true, Live: live}, nil
	}
	s := &domain.Session{
		ID:         id,
		TokenValue: cand.TokenValue,
		UserID:     cand.UserID,
		StreamName: cand.StreamName,
		ClientIP:   cand.ClientIP,
		Protocol:   cand.Protocol,
		StartedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  expiresAt,
	}
	l.insertLocked(s)
	l.mu.Unlock()

	if l.repo != nil {
		pctx, cancel := detach(ctx)
		err := l.repo.Create(pctx, s)
		cancel()
		if err != nil {
			l.mu.Lock()
			l.removeLocked(s)
			l.mu.Unlock()
			return Admission{}, err
		}
	}

	snapshot := *s
	return Admission{Session: &snapshot, Live: live + 1}, nil
}

// Release removes the session with the given id. Releasing a missing or
// already-swept session is a no-op. Returns true when a session was removed.
func (l *Ledger) Release(ctx context.Context, id string) bool {
	l.mu.Lock()
	s := l.sessions[id]
	l.mu.Unlock()

	removed := false
	if s != nil {
		unlock := l.lockToken(s.TokenValue)
		l.mu.Lock()
		// Re-check under the token lock; a concurrent sweep may have won.
		if cur := l.sessions[id]; cur != nil {
			l.removeLocked(cur)
			removed = true
		}
		l.mu.Unlock()
		unlock()
	}

	if l.repo != nil {
		pctx, cancel := detach(ctx)
		if err := l.repo.Delete(pctx, id); err != nil {
			l.log.Error().Err(err).Str("session_id", id).Msg("failed to delete stored session")
		}
		cancel()
	}
	return removed
}

// Get returns a copy of the live session with the given id, or nil.
func (l *Ledger) Get(id string) *domain.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.sessions[id]
	if s == nil {
		return nil
	}
	snapshot := *s
	return &snapshot
}

// ListLive returns copies of live sessions matching the filter, unordered.
func (l *Ledger) ListLive(filter Filter, now time.Time) []*domain.Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.Session
	for _, s := range l.sessions {
		if s.Expired(now) {
			continue
		}
		if filter.TokenValue != "" && s.TokenValue != filter.TokenValue {
			continue
		}
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		snapshot := *s
		out = append(out, &snapshot)
	}
	return out
}

// CountLive returns the number of live sessions for the token at now.
func (l *Ledger) CountLive(tokenValue string, now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.countLiveLocked(tokenValue, now)
}

// SweepExpired evicts every session whose lease elapsed at now and prunes
// expired rows from storage. Eviction of a session takes its token's lock, so
// a sweep cannot interleave with a refresh of the same session. Returns the
// number of sessions evicted from memory.
func (l *Ledger) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	tokens := make([]string, 0, len(l.byToken))
	for tv := range l.byToken {
		tokens = append(tokens, tv)
	}
	l.mu.Unlock()

	removed := 0
	for _, tv := range tokens {
		unlock := l.lockToken(tv)
		l.mu.Lock()
		for _, s := range l.byToken[tv] {
			if s.Expired(now) {
				l.removeLocked(s)
				removed++
			}
		}
		l.mu.Unlock()
		unlock()
	}

	if l.repo != nil {
		pctx, cancel := detach(ctx)
		_, err := l.repo.DeleteExpired(pctx, now)
		cancel()
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// lockToken acquires the per-token admission lock and returns its release func.
func (l *Ledger) lockToken(tokenValue string) func() {
	l.mu.Lock()
	tl := l.locks[tokenValue]
	if tl == nil {
		tl = &tokenLock{}
		l.locks[tokenValue] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.mu.Lock()
		tl.refs--
		if tl.refs == 0 {
			delete(l.locks, tokenValue)
		}
		l.mu.Unlock()
	}
}

func (l *Ledger) insertLocked(s *domain.Session) {
	l.sessions[s.ID] = s
	m := l.byToken[s.TokenValue]
	if m == nil {
		m = make(map[string]*domain.Session)
		l.byToken[s.TokenValue] = m
	}
	m[s.ID] = s
}

func (l *Ledger) removeLocked(s *domain.Session) {
	delete(l.sessions, s.ID)
	if m := l.byToken[s.TokenValue]; m != nil {
		delete(m, s.ID)
		if len(m) == 0 {
			delete(l.byToken, s.TokenValue)
		}
	}
}

func (l *Ledger) countLiveLocked(tokenValue string, now time.Time) int {
	n := 0
	for _, s := range l.byToken[tokenValue] {
		if !s.Expired(now) {
			n++
		}
	}
	return n
}

// detach returns a context that survives cancellation of ctx but is bounded by
// persistTimeout, so ledger writes outlive the caller's deadline without
// hanging forever on a stuck store.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}
