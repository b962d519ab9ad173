package models

import "time"

// RefreshToken is a stored, revocable long-lived credential.
type RefreshToken struct {
	ID          string     `db:"id" json:"id"`
	ProfessorID string     `db:"professor_id" json:"professor_id"`
	Token       string     `db:"token" json:"-"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	Revoked     bool       `db:"revoked" json:"revoked"`
	RevokedAt   *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	IPAddress   string     `db:"ip_address" json:"-"`
	UserAgent   string     `db:"user_agent" json:"-"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
