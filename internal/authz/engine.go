// Package authz implements the authorization decision pipeline for the
// streaming server's /auth callback.
package authz

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	accessdomain "media-stream-auth/backend/internal/accesslog/domain"
	"media-stream-auth/backend/internal/ledger"
	tokendomain "media-stream-auth/backend/internal/token/domain"
	tokenrepo "media-stream-auth/backend/internal/token/repository"
)

// TokenReader is the minimal token store view needed by the engine.
type TokenReader interface {
	GetByValue(ctx context.Context, value string) (*tokendomain.Token, error)
}

var _ TokenReader = (tokenrepo.Repository)(nil)

// Recorder receives one access-log entry per decision.
type Recorder interface {
	Record(ctx context.Context, e *accessdomain.Entry)
}

// Engine evaluates authorization requests. It holds no mutable state of its
// own; all session mutation goes through the ledger.
type Engine struct {
	tokens      TokenReader
	ledger      *ledger.Ledger
	recorder    Recorder
	authTTL     time.Duration
	defaultCap  int
	log         zerolog.Logger
}

// New returns a decision engine. defaultCap applies when a token carries no
// session cap of its own; 0 means unlimited.
func New(tokens TokenReader, lg *ledger.Ledger, recorder Recorder, authTTL time.Duration, defaultCap int, log zerolog.Logger) *Engine {
	return &Engine{
		tokens:     tokens,
		ledger:     lg,
		recorder:   recorder,
		authTTL:    authTTL,
		defaultCap: defaultCap,
		log:        log,
	}
}

// Authorize runs the ordered checks from the most fundamental outward:
// token existence, lifecycle status, validity window, IP whitelist, stream
// whitelist, then session admission. The first failing check decides the
// denial reason. Every call records exactly one access-log entry.
//
// Storage errors deny with internal_error: granting unauthenticated access is
// the worse failure mode.
func (e *Engine) Authorize(ctx context.Context, req Request, now time.Time) Verdict {
	tok, err := e.tokens.GetByValue(ctx, req.Token)
	if err != nil {
		e.log.Error().Err(err).Str("stream", req.StreamName).Msg("token lookup failed")
		return e.deny(ctx, req, "", ReasonInternalError)
	}
	if tok == nil {
		return e.deny(ctx, req, "", ReasonTokenNotFound)
	}

	switch tok.Status {
	case tokendomain.TokenStatusSuspended:
		return e.deny(ctx, req, tok.UserID, ReasonTokenSuspended)
	case tokendomain.TokenStatusExpired:
		return e.deny(ctx, req, tok.UserID, ReasonTokenExpired)
	}

	if tok.BeforeValidFrom(now) {
		return e.deny(ctx, req, tok.UserID, ReasonTokenNotYetValid)
	}
	if tok.AfterValidUntil(now) {
		return e.deny(ctx, req, tok.UserID, ReasonTokenTimeExpired)
	}

	if !tok.AllowsIP(req.ClientIP) {
		return e.deny(ctx, req, tok.UserID, ReasonIPNotAllowed)
	}
	if !tok.AllowsStream(req.StreamName) {
		return e.deny(ctx, req, tok.UserID, ReasonStreamNotAllowed)
	}

	maxSessions := tok.EffectiveMaxSessions(e.defaultCap)
	adm, err := e.ledger.AdmitOrRefresh(ctx, ledger.Candidate{
		TokenValue: tok.Value,
		UserID:     tok.UserID,
		StreamName: req.StreamName,
		ClientIP:   req.ClientIP,
		Protocol:   req.Protocol,
	}, maxSessions, e.authTTL, now)
	if err != nil {
		e.log.Error().Err(err).Str("token", tok.Value).Msg("session admission failed")
		return e.deny(ctx, req, tok.UserID, ReasonInternalError)
	}
	if adm.AtCapacity {
		return e.deny(ctx, req, tok.UserID, ReasonSessionLimitExceeded)
	}

	reason := "new_session"
	if adm.Refreshed {
		reason = "session_recheck"
	}
	e.record(ctx, req, tok.UserID, accessdomain.ResultAllowed, reason)

	return Verdict{
		Allowed:      true,
		UserID:       tok.UserID,
		MaxSessions:  maxSessions,
		AuthDuration: e.authTTL,
		SessionID:    adm.Session.ID,
		Refreshed:    adm.Refreshed,
	}
}

func (e *Engine) deny(ctx context.Context, req Request, userID string, reason Reason) Verdict {
	e.record(ctx, req, userID, accessdomain.ResultDenied, string(reason))
	return Verdict{
		Allowed: false,
		UserID:  userID,
		Reason:  reason,
		Message: reason.Message(),
	}
}

func (e *Engine) record(ctx context.Context, req Request, userID string, result accessdomain.Result, reason string) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, &accessdomain.Entry{
		TokenValue: req.Token,
		UserID:     userID,
		StreamName: req.StreamName,
		ClientIP:   req.ClientIP,
		Protocol:   req.Protocol,
		Result:     result,
		Reason:     reason,
	})
}
