package types

import "time"

// PinSession is a visitor session on a PIN-gated app.
type PinSession struct {
	ID           string     `json:"id"`
	AppID        string     `json:"app_id"`
	CreatedAt    time.Time  `json:"created_at"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	IdentityHash string     `json:"identity_hash"`
	UserAgent    string     `json:"user_agent,omitempty"`
	AnonID       string     `json:"anon_id,omitempty"`
	Revoked      bool       `json:"revoked,omitempty"`
}

// Expired reports whether the session is past its absolute expiry or idle
// for longer than ttl.
func (s *PinSession) Expired(now time.Time, ttl time.Duration) bool {
	if s.ExpiresAt != nil && !now.Before(*s.ExpiresAt) {
		return true
	}
	return ttl > 0 && now.Sub(s.LastSeenAt) > ttl
}

// ClientInfo describes the caller creating or touching a session.
type ClientInfo struct {
	IP        string
	UserAgent string
	AnonID    string
}

// RoomClaims is the payload of a room access token.
type RoomClaims struct {
	AppID     string `json:"app_id"`
	RoomCode  string `json:"room_code"`
	Namespace string `json:"namespace"`
	IsDemo    bool   `json:"is_demo,omitempty"`
	RoomName  string `json:"room_name,omitempty"`
}

// Room is a named shared space inside an app.
type Room struct {
	AppID     string    `json:"app_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsDemo    bool      `json:"is_demo"`
	CreatedAt time.Time `json:"created_at"`
}
