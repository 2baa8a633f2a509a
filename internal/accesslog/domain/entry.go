package domain

import "time"

// Result is the outcome recorded for one authorization decision.
type Result string

const (
	ResultAllowed Result = "allowed"
	ResultDenied  Result = "denied"
)

// Entry is one immutable audit record, appended once per decision.
// CreatedAt is authoritative for ordering; arrival order at the store is not.
type Entry struct {
	ID         string
	TokenValue string
	UserID     string // empty when the token did not resolve
	StreamName string
	ClientIP   string
	Protocol   string
	Result     Result
	Reason     string
	CreatedAt  time.Time
}
