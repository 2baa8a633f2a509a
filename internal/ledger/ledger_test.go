package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"media-stream-auth/backend/internal/session/domain"
)

const ttl = 180 * time.Second

func testLedger() *Ledger {
	return New(nil, zerolog.Nop())
}

func cand(token, ip, stream string) Candidate {
	return Candidate{TokenValue: token, UserID: "u-" + token, StreamName: stream, ClientIP: ip, Protocol: "hls"}
}

func TestAdmitNewSession(t *testing.T) {
	l := testLedger()
	now := time.Now()

	adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 2, ttl, now)
	if err != nil {
		t.Fatalf("AdmitOrRefresh: %v", err)
	}
	if adm.Refreshed || adm.AtCapacity {
		t.Fatalf("expected fresh admission, got %+v", adm)
	}
	if adm.Live != 1 {
		t.Errorf("Live = %d, want 1", adm.Live)
	}
	want := domain.SessionID("s1", "10.0.0.1", "t1", "hls")
	if adm.Session.ID != want {
		t.Errorf("session ID = %q, want %q", adm.Session.ID, want)
	}
	if got := adm.Session.ExpiresAt; !got.Equal(now.Add(ttl)) {
		t.Errorf("ExpiresAt = %v, want %v", got, now.Add(ttl))
	}
}

func TestRepeatRequestRefreshes(t *testing.T) {
	l := testLedger()
	now := time.Now()
	c := cand("t1", "10.0.0.1", "s1")

	first, err := l.AdmitOrRefresh(context.Background(), c, 2, ttl, now)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}

	later := now.Add(30 * time.Second)
	second, err := l.AdmitOrRefresh(context.Background(), c, 2, ttl, later)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !second.Refreshed {
		t.Fatal("repeat request should refresh, not admit")
	}
	if second.Live != 1 {
		t.Errorf("Live = %d, want 1 (refresh must not add a session)", second.Live)
	}
	if !second.Session.StartedAt.Equal(first.Session.StartedAt) {
		t.Error("refresh must preserve StartedAt")
	}
	if !second.Session.ExpiresAt.Equal(later.Add(ttl)) {
		t.Errorf("ExpiresAt = %v, want %v", second.Session.ExpiresAt, later.Add(ttl))
	}
}

func TestAtCapacity(t *testing.T) {
	l := testLedger()
	now := time.Now()

	for i, stream := range []string{"s1", "s2"} {
		adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", stream), 2, ttl, now)
		if err != nil || adm.AtCapacity {
			t.Fatalf("admission %d failed: %+v err=%v", i, adm, err)
		}
	}

	adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s3"), 2, ttl, now)
	if err != nil {
		t.Fatalf("AdmitOrRefresh: %v", err)
	}
	if !adm.AtCapacity {
		t.Fatal("third session should hit the cap")
	}
	if adm.Live != 2 {
		t.Errorf("Live = %d, want 2", adm.Live)
	}
}

func TestZeroCapMeansUnlimited(t *testing.T) {
	l := testLedger()
	now := time.Now()
	for _, stream := range []string{"s1", "s2", "s3", "s4", "s5", "s6"} {
		adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", stream), 0, ttl, now)
		if err != nil || adm.AtCapacity {
			t.Fatalf("unlimited token hit a cap at %s: %+v err=%v", stream, adm, err)
		}
	}
}

func TestConcurrentAdmissionsNeverOvershoot(t *testing.T) {
	const maxSessions = 3
	const attempts = maxSessions + 17

	l := testLedger()
	now := time.Now()

	var wg sync.WaitGroup
	results := make([]Admission, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := Candidate{
				TokenValue: "t1",
				UserID:     "u1",
				StreamName: "s1",
				ClientIP:   fmt.Sprintf("10.0.0.%d", i+1),
				Protocol:   "hls",
			}
			adm, err := l.AdmitOrRefresh(context.Background(), c, maxSessions, ttl, now)
			if err != nil {
				t.Errorf("AdmitOrRefresh: %v", err)
				return
			}
			results[i] = adm
		}(i)
	}
	wg.Wait()

	admitted, denied := 0, 0
	for _, adm := range results {
		if adm.AtCapacity {
			denied++
		} else if adm.Session != nil {
			admitted++
		}
	}
	if admitted != maxSessions {
		t.Errorf("admitted = %d, want exactly %d", admitted, maxSessions)
	}
	if denied != attempts-maxSessions {
		t.Errorf("denied = %d, want %d", denied, attempts-maxSessions)
	}
	if live := l.CountLive("t1", now); live != maxSessions {
		t.Errorf("CountLive = %d, want %d", live, maxSessions)
	}
}

func TestDistinctTokensDoNotShareSlots(t *testing.T) {
	l := testLedger()
	now := time.Now()

	var wg sync.WaitGroup
	for _, token := range []string{"t1", "t2", "t3"} {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			adm, err := l.AdmitOrRefresh(context.Background(), cand(token, "10.0.0.1", "s1"), 1, ttl, now)
			if err != nil || adm.AtCapacity {
				t.Errorf("token %s: %+v err=%v", token, adm, err)
			}
		}(token)
	}
	wg.Wait()

	for _, token := range []string{"t1", "t2", "t3"} {
		if live := l.CountLive(token, now); live != 1 {
			t.Errorf("CountLive(%s) = %d, want 1", token, live)
		}
	}
}

func TestSweepFreesSlot(t *testing.T) {
	l := testLedger()
	now := time.Now()

	if _, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 1, ttl, now); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// Slot occupied: second stream is denied.
	adm, _ := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s2"), 1, ttl, now)
	if !adm.AtCapacity {
		t.Fatal("second session should be at capacity")
	}

	after := now.Add(ttl + time.Second)
	removed, err := l.SweepExpired(context.Background(), after)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	adm, err = l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s2"), 1, ttl, after)
	if err != nil || adm.AtCapacity {
		t.Fatalf("slot should be free after sweep: %+v err=%v", adm, err)
	}
}

func TestExpiredSessionDoesNotCountBeforeSweep(t *testing.T) {
	l := testLedger()
	now := time.Now()

	if _, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 1, ttl, now); err != nil {
		t.Fatalf("admit: %v", err)
	}

	// Lease elapsed but the sweeper has not run; a new stream takes the slot.
	after := now.Add(ttl + time.Second)
	adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s2"), 1, ttl, after)
	if err != nil || adm.AtCapacity {
		t.Fatalf("expired session should not hold the slot: %+v err=%v", adm, err)
	}
	if live := l.CountLive("t1", after); live != 1 {
		t.Errorf("CountLive = %d, want 1", live)
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l := testLedger()
	now := time.Now()

	adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 1, ttl, now)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	id := adm.Session.ID

	if !l.Release(context.Background(), id) {
		t.Error("first release should remove the session")
	}
	if l.Release(context.Background(), id) {
		t.Error("second release must be a no-op")
	}
	if l.Release(context.Background(), "no-such-session") {
		t.Error("releasing an unknown session must be a no-op")
	}
	if live := l.CountLive("t1", now); live != 0 {
		t.Errorf("CountLive = %d, want 0", live)
	}
}

func TestListLiveFilters(t *testing.T) {
	l := testLedger()
	now := time.Now()

	for _, c := range []Candidate{cand("t1", "10.0.0.1", "s1"), cand("t1", "10.0.0.1", "s2"), cand("t2", "10.0.0.2", "s1")} {
		if _, err := l.AdmitOrRefresh(context.Background(), c, 0, ttl, now); err != nil {
			t.Fatalf("admit: %v", err)
		}
	}

	if got := len(l.ListLive(Filter{}, now)); got != 3 {
		t.Errorf("ListLive(all) = %d, want 3", got)
	}
	if got := len(l.ListLive(Filter{TokenValue: "t1"}, now)); got != 2 {
		t.Errorf("ListLive(t1) = %d, want 2", got)
	}
	if got := len(l.ListLive(Filter{UserID: "u-t2"}, now)); got != 1 {
		t.Errorf("ListLive(u-t2) = %d, want 1", got)
	}
}

// memSessionRepo is an in-memory session repository used to exercise
// write-through and load paths.
type memSessionRepo struct {
	mu      sync.Mutex
	m       map[string]*domain.Session
	failOps bool
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{m: make(map[string]*domain.Session)}
}

var errStore = errors.New("store unavailable")

func (r *memSessionRepo) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return nil, errStore
	}
	return r.m[id], nil
}

func (r *memSessionRepo) ListAll(ctx context.Context) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return nil, errStore
	}
	out := make([]*domain.Session, 0, len(r.m))
	for _, s := range r.m {
		s2 := *s
		out = append(out, &s2)
	}
	return out, nil
}

func (r *memSessionRepo) List(ctx context.Context, tokenValue, userID string, limit, offset int32) ([]*domain.Session, error) {
	return r.ListAll(ctx)
}

func (r *memSessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return errStore
	}
	s2 := *s
	r.m[s.ID] = &s2
	return nil
}

func (r *memSessionRepo) ExtendExpiry(ctx context.Context, id string, lastSeenAt, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return errStore
	}
	if s, ok := r.m[id]; ok {
		s.LastSeenAt = lastSeenAt
		s.ExpiresAt = expiresAt
	}
	return nil
}

func (r *memSessionRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return errStore
	}
	delete(r.m, id)
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOps {
		return 0, errStore
	}
	var n int64
	for id, s := range r.m {
		if s.Expired(now) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func TestWriteThroughAndLoad(t *testing.T) {
	repo := newMemSessionRepo()
	now := time.Now()

	l := New(repo, zerolog.Nop())
	if _, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 2, ttl, now); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s2"), 2, 1*time.Nanosecond, now); err != nil {
		t.Fatalf("admit short-lived: %v", err)
	}

	// Restart: a fresh ledger reloads only the session still alive.
	l2 := New(repo, zerolog.Nop())
	loaded, err := l2.Load(context.Background(), now.Add(time.Second))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != 1 {
		t.Errorf("loaded = %d, want 1", loaded)
	}
	if live := l2.CountLive("t1", now.Add(time.Second)); live != 1 {
		t.Errorf("CountLive after reload = %d, want 1", live)
	}
}

func TestAdmissionRollsBackOnStoreFailure(t *testing.T) {
	repo := newMemSessionRepo()
	repo.failOps = true
	l := New(repo, zerolog.Nop())
	now := time.Now()

	_, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 2, ttl, now)
	if err == nil {
		t.Fatal("expected store error to surface")
	}
	if live := l.CountLive("t1", now); live != 0 {
		t.Errorf("failed admission must not leave a live session, CountLive = %d", live)
	}

	// Store recovers; the slot is admittable again.
	repo.failOps = false
	adm, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 2, ttl, now)
	if err != nil || adm.AtCapacity {
		t.Fatalf("admission after recovery: %+v err=%v", adm, err)
	}
}

func TestSweepReportsStoreErrorButStillEvicts(t *testing.T) {
	repo := newMemSessionRepo()
	l := New(repo, zerolog.Nop())
	now := time.Now()

	if _, err := l.AdmitOrRefresh(context.Background(), cand("t1", "10.0.0.1", "s1"), 1, ttl, now); err != nil {
		t.Fatalf("admit: %v", err)
	}

	repo.failOps = true
	removed, err := l.SweepExpired(context.Background(), now.Add(ttl+time.Second))
	if err == nil {
		t.Error("expected sweep to report the storage error")
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1 (memory eviction must not depend on storage)", removed)
	}
	if live := l.CountLive("t1", now.Add(ttl+time.Second)); live != 0 {
		t.Errorf("CountLive = %d, want 0", live)
	}
}
