package models

// SessionState is the lifecycle position of a Session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateConnected
	StateAuthorizing
	StateAuthorized
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MAccount is the subset of the authorize reply kept by the session.
type MAccount struct {
	LoginID  string `json:"loginid"`
	Currency string `json:"currency"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
}
