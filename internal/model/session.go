package model

import "time"

// SessionContext determines a session's TTL and whether IP pinning applies.
type SessionContext string

const (
	SessionContextGeneral SessionContext = "GENERAL"
	SessionContextExam    SessionContext = "EXAM"
)

// Valid reports whether c is a known context.
func (c SessionContext) Valid() bool {
	return c == SessionContextGeneral || c == SessionContextExam
}

// Session is an ephemeral authentication session. At most one session per
// user is in EXAM context at any time.
type Session struct {
	ID              string         `json:"session_id"`
	UserID          int            `json:"user_id"`
	DeviceID        string         `json:"device_id"`
	Context         SessionContext `json:"context"`
	IPAddress       string         `json:"ip_address"`
	ProctorVerified bool           `json:"proctor_verified"`
	CreatedAt       time.Time      `json:"created_at"`
	LastActive      time.Time      `json:"last_active"`
}

// IsExam reports whether the session is in EXAM context.
func (s *Session) IsExam() bool {
	return s.Context == SessionContextExam
}
