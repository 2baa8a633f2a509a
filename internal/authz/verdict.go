package authz

import "time"

// Reason identifies why a request was denied. The set below is the exhaustive
// taxonomy for the decision endpoint.
type Reason string

const (
	ReasonTokenNotFound        Reason = "token_not_found"
	ReasonTokenSuspended       Reason = "token_suspended"
	ReasonTokenExpired         Reason = "token_expired"
	ReasonTokenNotYetValid     Reason = "token_not_yet_valid"
	ReasonTokenTimeExpired     Reason = "token_time_expired"
	ReasonIPNotAllowed         Reason = "ip_not_allowed"
	ReasonStreamNotAllowed     Reason = "stream_not_allowed"
	ReasonSessionLimitExceeded Reason = "session_limit_exceeded"
	ReasonInternalError        Reason = "internal_error"
)

// Message returns the human-readable denial text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonTokenNotFound:
		return "Invalid or unknown token"
	case ReasonTokenSuspended:
		return "Token has been suspended"
	case ReasonTokenExpired:
		return "Token has expired"
	case ReasonTokenNotYetValid:
		return "Token is not yet valid"
	case ReasonTokenTimeExpired:
		return "Token validity period has ended"
	case ReasonIPNotAllowed:
		return "IP address is not authorized for this token"
	case ReasonStreamNotAllowed:
		return "Stream is not authorized for this token"
	case ReasonSessionLimitExceeded:
		return "Maximum concurrent sessions limit reached"
	case ReasonInternalError:
		return "Authorization could not be completed"
	}
	return "Access denied"
}

// Request is the immutable descriptor of one authorization attempt.
type Request struct {
	Token      string
	ClientIP   string
	StreamName string
	Protocol   string
}

// Verdict is the outcome of one authorization evaluation.
type Verdict struct {
	Allowed bool

	// Set on allow.
	UserID       string
	MaxSessions  int // effective cap communicated to the caller; 0 = unlimited
	AuthDuration time.Duration
	SessionID    string
	Refreshed    bool

	// Set on deny. UserID is also set when the token resolved.
	Reason  Reason
	Message string
}
