package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"media-stream-auth/backend/internal/authz"
)

// deniedResponse is the structured 403 body consumed by the streaming server.
type deniedResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason"`
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// handleAuthorize is the decision endpoint the streaming server calls before
// serving a client. Parameters arrive as query (GET) or form (POST) values.
// 200 with X-UserId/X-Max-Sessions/X-AuthDuration headers grants access for
// AuthDuration seconds; 403 with a reason body denies it.
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	name := r.FormValue("name")
	ip := r.FormValue("ip")
	token := r.FormValue("token")
	proto := r.FormValue("proto")
	if proto == "" {
		proto = "unknown"
	}
	if name == "" || ip == "" || token == "" {
		respondError(w, r, http.StatusBadRequest, "parameters name, ip and token are required")
		return
	}

	// The caller enforces a hard 3s timeout and treats a slow answer as a
	// failure, so the whole decision runs under a tighter budget.
	ctx, cancel := context.WithTimeout(r.Context(), s.decisionBudget)
	defer cancel()

	verdict := s.engine.Authorize(ctx, authz.Request{
		Token:      token,
		ClientIP:   ip,
		StreamName: name,
		Protocol:   proto,
	}, s.nowF())

	log := zerolog.Ctx(r.Context())
	if verdict.Allowed {
		log.Info().
			Str("user_id", verdict.UserID).
			Str("stream", name).
			Bool("refreshed", verdict.Refreshed).
			Msg("access granted")

		w.Header().Set("X-UserId", verdict.UserID)
		w.Header().Set("X-Max-Sessions", strconv.Itoa(verdict.MaxSessions))
		w.Header().Set("X-AuthDuration", strconv.Itoa(int(verdict.AuthDuration.Seconds())))
		w.WriteHeader(http.StatusOK)
		return
	}

	log.Warn().
		Str("reason", string(verdict.Reason)).
		Str("stream", name).
		Str("ip", ip).
		Msg("access denied")

	respondJSON(w, r, http.StatusForbidden, deniedResponse{
		Error:   "access_denied",
		Reason:  string(verdict.Reason),
		Message: verdict.Message,
		UserID:  verdict.UserID,
	})
}
