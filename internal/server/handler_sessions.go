package server

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	accessdomain "media-stream-auth/backend/internal/accesslog/domain"
	"media-stream-auth/backend/internal/ledger"
	"media-stream-auth/backend/internal/session/domain"
)

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	Token      string    `json:"token"`
	UserID     string    `json:"user_id"`
	StreamName string    `json:"stream_name"`
	ClientIP   string    `json:"client_ip"`
	Protocol   string    `json:"protocol"`
	StartedAt  time.Time `json:"started_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func sessionToResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		SessionID:  s.ID,
		Token:      s.TokenValue,
		UserID:     s.UserID,
		StreamName: s.StreamName,
		ClientIP:   s.ClientIP,
		Protocol:   s.Protocol,
		StartedAt:  s.StartedAt,
		LastSeenAt: s.LastSeenAt,
		ExpiresAt:  s.ExpiresAt,
	}
}

// handleListSessions lists live sessions, newest first, optionally filtered
// by token and/or user.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	live := s.ledger.ListLive(ledger.Filter{
		TokenValue: q.Get("token"),
		UserID:     q.Get("user_id"),
	}, s.nowF())

	sort.Slice(live, func(i, j int) bool {
		return live[i].StartedAt.After(live[j].StartedAt)
	})

	limit, offset := pagination(r)
	lo := min(int(offset), len(live))
	hi := min(lo+int(limit), len(live))

	out := make([]sessionResponse, 0, hi-lo)
	for _, ses := range live[lo:hi] {
		out = append(out, sessionToResponse(ses))
	}
	respondJSON(w, r, http.StatusOK, out)
}

// handleTerminateSession removes one session. The ledger release is
// idempotent; a second terminate simply reports not found.
func (s *Server) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ledger.Release(r.Context(), id) {
		respondError(w, r, http.StatusNotFound, "session not found")
		return
	}
	zerolog.Ctx(r.Context()).Info().Str("session_id", id).Msg("session terminated")
	w.WriteHeader(http.StatusNoContent)
}

// handleCleanupSessions triggers one sweep outside the background schedule.
func (s *Server) handleCleanupSessions(w http.ResponseWriter, r *http.Request) {
	removed, err := s.ledger.SweepExpired(r.Context(), s.nowF())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("manual sweep finished with storage error")
	}
	respondJSON(w, r, http.StatusOK, map[string]int{"cleaned": removed})
}

type accessLogResponse struct {
	ID         string    `json:"id"`
	Token      string    `json:"token"`
	UserID     string    `json:"user_id,omitempty"`
	StreamName string    `json:"stream_name"`
	ClientIP   string    `json:"client_ip"`
	Protocol   string    `json:"protocol"`
	Result     string    `json:"result"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// handleListAccessLogs lists audit entries, newest first.
func (s *Server) handleListAccessLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		respondError(w, r, http.StatusNotFound, "access log store not configured")
		return
	}
	q := r.URL.Query()
	var result *accessdomain.Result
	if v := q.Get("result"); v != "" {
		if v != string(accessdomain.ResultAllowed) && v != string(accessdomain.ResultDenied) {
			respondError(w, r, http.StatusBadRequest, "result must be allowed or denied")
			return
		}
		res := accessdomain.Result(v)
		result = &res
	}
	limit, offset := pagination(r)

	entries, err := s.logs.List(r.Context(), q.Get("token"), result, limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to list access logs")
		return
	}
	out := make([]accessLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, accessLogResponse{
			ID:         e.ID,
			Token:      e.TokenValue,
			UserID:     e.UserID,
			StreamName: e.StreamName,
			ClientIP:   e.ClientIP,
			Protocol:   e.Protocol,
			Result:     string(e.Result),
			Reason:     e.Reason,
			CreatedAt:  e.CreatedAt,
		})
	}
	respondJSON(w, r, http.StatusOK, out)
}
