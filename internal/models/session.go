package models

import "time"

// GuestSession is the transient identity an unauthenticated visitor
// accumulates a cart under. Persisted under the guest_session key and
// destroyed only after a verified cart migration.
type GuestSession struct {
	SessionID string     `json:"session_id"`
	Cart      []CartItem `json:"cart"`
}

// PhoneAuthSession is the persisted record of an in-flight OTP
// challenge. At most one exists at a time.
type PhoneAuthSession struct {
	SessionInfo string    `json:"session_info"`
	PhoneNumber string    `json:"phone_number"`
	Timestamp   time.Time `json:"timestamp"`
	ExpiresAt   time.Time `json:"expires_at"`
}
