package model

import "time"

// SessionRevocation is the audit row written for every revoked session.
type SessionRevocation struct {
	EventID   string         `json:"event_id"`
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	UserID    int            `json:"user_id"`
	DeviceID  string         `json:"device_id"`
	Context   SessionContext `json:"context"`
	IPAddress string         `json:"ip_address"`
	RevokedAt time.Time      `json:"revoked_at"`
}
