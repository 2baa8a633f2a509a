package domain

import (
	"errors"
	"time"
)

// Token is a streaming credential plus its access policy.
type Token struct {
	Value          string // opaque token string, primary lookup key
	UserID         string
	Status         TokenStatus
	ValidFrom      *time.Time // nil when unbounded
	ValidUntil     *time.Time // nil when unbounded
	MaxSessions    *int       // nil = use configured default; 0 = unlimited
	AllowedIPs     []string   // empty = unrestricted
	AllowedStreams []string   // empty = unrestricted
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TokenStatus string

const (
	TokenStatusActive    TokenStatus = "active"
	TokenStatusSuspended TokenStatus = "suspended"
	TokenStatusExpired   TokenStatus = "expired"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s TokenStatus) bool {
	switch s {
	case TokenStatusActive, TokenStatusSuspended, TokenStatusExpired:
		return true
	}
	return false
}

// Validate validates the token for persistence. Returns an error describing the first validation failure.
func (t *Token) Validate() error {
	if t.Value == "" {
		return errors.New("token value is required")
	}
	if t.UserID == "" {
		return errors.New("user_id is required")
	}
	if t.Status == "" {
		t.Status = TokenStatusActive
	}
	if !ValidStatus(t.Status) {
		return errors.New("status must be active, suspended or expired")
	}
	if t.MaxSessions != nil && *t.MaxSessions < 0 {
		return errors.New("max_sessions must not be negative")
	}
	if t.ValidFrom != nil && t.ValidUntil != nil && t.ValidUntil.Before(*t.ValidFrom) {
		return errors.New("valid_until must not be before valid_from")
	}
	return nil
}

// InValidityWindow reports whether now falls inside the token's time bounds.
// A nil bound is unbounded on that side.
func (t *Token) InValidityWindow(now time.Time) bool {
	return !t.BeforeValidFrom(now) && !t.AfterValidUntil(now)
}

// BeforeValidFrom reports whether the token is not yet valid at now.
func (t *Token) BeforeValidFrom(now time.Time) bool {
	return t.ValidFrom != nil && now.Before(*t.ValidFrom)
}

// AfterValidUntil reports whether the token's validity window has passed at now.
func (t *Token) AfterValidUntil(now time.Time) bool {
	return t.ValidUntil != nil && now.After(*t.ValidUntil)
}

// AllowsIP reports whether clientIP passes the token's IP whitelist.
// An empty whitelist allows any IP.
func (t *Token) AllowsIP(clientIP string) bool {
	if len(t.AllowedIPs) == 0 {
		return true
	}
	for _, ip := range t.AllowedIPs {
		if ip == clientIP {
			return true
		}
	}
	return false
}

// AllowsStream reports whether streamName passes the token's stream whitelist.
// An empty whitelist allows any stream.
func (t *Token) AllowsStream(streamName string) bool {
	if len(t.AllowedStreams) == 0 {
		return true
	}
	for _, s := range t.AllowedStreams {
		if s == streamName {
			return true
		}
	}
	return false
}

// EffectiveMaxSessions resolves the concurrent-session cap, falling back to
// defaultCap when the token carries none. 0 means unlimited.
func (t *Token) EffectiveMaxSessions(defaultCap int) int {
	if t.MaxSessions != nil {
		return *t.MaxSessions
	}
	return defaultCap
}
