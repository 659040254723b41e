package types

import (
	"time"

	"github.com/google/uuid"
)

// CalendarSubscription grants token-only access to a person's ICS feed.
type CalendarSubscription struct {
	Token           string     `json:"token"` // URL-safe 32-byte random
	PersonID        uuid.UUID  `json:"person_id"`
	CreatedByUserID *uuid.UUID `json:"created_by_user_id,omitempty"`
	Label           string     `json:"label,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	RevokedAt       *time.Time `json:"revoked_at,omitempty"`
	LastAccessedAt  *time.Time `json:"last_accessed_at,omitempty"`
}

// Usable reports whether the token still authorizes feed access.
func (s *CalendarSubscription) Usable(now time.Time) bool {
	if !s.IsActive || s.RevokedAt != nil {
		return false
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	return true
}

// Revoke deactivates the subscription immediately.
func (s *CalendarSubscription) Revoke(now time.Time) {
	s.IsActive = false
	s.RevokedAt = &now
}
