package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Session is one admitted, time-bounded grant of access tied to a specific
// (token, client IP, stream, protocol) tuple.
type Session struct {
	ID         string // deterministic, see SessionID
	TokenValue string
	UserID     string
	StreamName string
	ClientIP   string
	Protocol   string
	StartedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// SessionID derives the session identity from the admitting request's tuple.
// The same client re-checking the same stream with the same token maps to the
// same ID, which is how a re-check is recognized as a refresh instead of a
// new concurrent session.
func SessionID(streamName, clientIP, tokenValue, protocol string) string {
	h := sha256.Sum256([]byte(streamName + clientIP + tokenValue + protocol))
	return hex.EncodeToString(h[:])
}

// Expired reports whether the session's lease has elapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
