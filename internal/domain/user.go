// Package domain contains core domain types for the agentdesk service.
package domain

import (
	"time"
)

// User is the owner identity behind a device or an authenticated principal.
type User struct {
	UserID        string    `json:"user_id"`
	Username      string    `json:"username"`
	Authenticated bool      `json:"authenticated"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CanOwnHistory reports whether turns may be persisted for this user.
func (u *User) CanOwnHistory() bool {
	return u != nil && u.Authenticated && u.UserID != ""
}

// IdleFor returns how long the user has been inactive.
// Returns 0 if the user was seen in the future relative to now.
func (u *User) IdleFor(now time.Time) time.Duration {
	idle := now.Sub(u.LastSeenAt)
	if idle < 0 {
		return 0
	}
	return idle
}
