package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"media-stream-auth/backend/internal/token/domain"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type tokenPayload struct {
	Token          string            `json:"token"`
	UserID         string            `json:"user_id"`
	Status         string            `json:"status"`
	MaxSessions    *int              `json:"max_sessions"`
	ValidFrom      *time.Time        `json:"valid_from"`
	ValidUntil     *time.Time        `json:"valid_until"`
	AllowedIPs     []string          `json:"allowed_ips"`
	AllowedStreams []string          `json:"allowed_streams"`
	Meta           map[string]string `json:"meta"`
}

type tokenResponse struct {
	tokenPayload
	EffectiveMaxSessions int       `json:"effective_max_sessions"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (s *Server) tokenToResponse(t *domain.Token) tokenResponse {
	return tokenResponse{
		tokenPayload: tokenPayload{
			Token:          t.Value,
			UserID:         t.UserID,
			Status:         string(t.Status),
			MaxSessions:    t.MaxSessions,
			ValidFrom:      t.ValidFrom,
			ValidUntil:     t.ValidUntil,
			AllowedIPs:     t.AllowedIPs,
			AllowedStreams: t.AllowedStreams,
			Meta:           t.Metadata,
		},
		EffectiveMaxSessions: t.EffectiveMaxSessions(s.defaultMaxSessions),
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var in tokenPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	now := s.nowF()
	tok := &domain.Token{
		Value:          in.Token,
		UserID:         in.UserID,
		Status:         domain.TokenStatus(in.Status),
		MaxSessions:    in.MaxSessions,
		ValidFrom:      in.ValidFrom,
		ValidUntil:     in.ValidUntil,
		AllowedIPs:     in.AllowedIPs,
		AllowedStreams: in.AllowedStreams,
		Metadata:       in.Meta,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tok.Validate(); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.tokens.GetByValue(r.Context(), tok.Value)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to check token")
		return
	}
	if existing != nil {
		respondError(w, r, http.StatusBadRequest, "token already exists")
		return
	}

	if err := s.tokens.Create(r.Context(), tok); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to create token")
		respondError(w, r, http.StatusInternalServerError, "failed to create token")
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("user_id", tok.UserID).Msg("token created")
	respondJSON(w, r, http.StatusCreated, s.tokenToResponse(tok))
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	var status *domain.TokenStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := domain.TokenStatus(v)
		if !domain.ValidStatus(st) {
			respondError(w, r, http.StatusBadRequest, "unknown status filter")
			return
		}
		status = &st
	}
	limit, offset := pagination(r)

	tokens, err := s.tokens.List(r.Context(), status, limit, offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to list tokens")
		return
	}
	out := make([]tokenResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, s.tokenToResponse(t))
	}
	respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	tok, err := s.tokens.GetByValue(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to get token")
		return
	}
	if tok == nil {
		respondError(w, r, http.StatusNotFound, "token not found")
		return
	}
	respondJSON(w, r, http.StatusOK, s.tokenToResponse(tok))
}

// tokenUpdate uses pointers so absent fields are left untouched.
type tokenUpdate struct {
	Status         *string            `json:"status"`
	MaxSessions    *int               `json:"max_sessions"`
	ValidFrom      *time.Time         `json:"valid_from"`
	ValidUntil     *time.Time         `json:"valid_until"`
	AllowedIPs     *[]string          `json:"allowed_ips"`
	AllowedStreams *[]string          `json:"allowed_streams"`
	Meta           *map[string]string `json:"meta"`
}

func (s *Server) handleUpdateToken(w http.ResponseWriter, r *http.Request) {
	var in tokenUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	tok, err := s.tokens.GetByValue(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to get token")
		return
	}
	if tok == nil {
		respondError(w, r, http.StatusNotFound, "token not found")
		return
	}

	if in.Status != nil {
		tok.Status = domain.TokenStatus(*in.Status)
	}
	if in.MaxSessions != nil {
		tok.MaxSessions = in.MaxSessions
	}
	if in.ValidFrom != nil {
		tok.ValidFrom = in.ValidFrom
	}
	if in.ValidUntil != nil {
		tok.ValidUntil = in.ValidUntil
	}
	if in.AllowedIPs != nil {
		tok.AllowedIPs = *in.AllowedIPs
	}
	if in.AllowedStreams != nil {
		tok.AllowedStreams = *in.AllowedStreams
	}
	if in.Meta != nil {
		tok.Metadata = *in.Meta
	}
	tok.UpdatedAt = s.nowF()

	if err := tok.Validate(); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.tokens.Update(r.Context(), tok); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to update token")
		respondError(w, r, http.StatusInternalServerError, "failed to update token")
		return
	}

	zerolog.Ctx(r.Context()).Info().Str("user_id", tok.UserID).Msg("token updated")
	respondJSON(w, r, http.StatusOK, s.tokenToResponse(tok))
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.tokens.Delete(r.Context(), chi.URLParam(r, "value"))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, "failed to delete token")
		return
	}
	if !deleted {
		respondError(w, r, http.StatusNotFound, "token not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pagination(r *http.Request) (limit, offset int32) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = int32(min(n, maxPageSize))
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}
