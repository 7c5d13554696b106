// Package domain holds the Session Record entity backing the Session Store (C2).
package domain

import "time"

// Session is a stateful record of an issued refresh credential, keyed by its jti. Its presence
// in the store is what makes a refresh token valid; deleting the row revokes it.
type Session struct {
	JTI       string
	UserID    string
	Device    string
	Metadata  map[string]string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session's TTL has elapsed as of now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
