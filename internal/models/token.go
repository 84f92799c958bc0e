package models

import "time"

// RefreshToken is the persisted record of one refresh-token lineage link.
// A revoked token with ReplacedBy set was rotated forward; presenting it again
// is treated as reuse. A revoked token without ReplacedBy was an explicit
// logout and is merely invalid.
type RefreshToken struct {
	ID         string     `db:"id" json:"id"`
	UserID     string     `db:"user_id" json:"user_id"`
	Token      string     `db:"token" json:"-"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	Revoked    bool       `db:"revoked" json:"revoked"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedBy *string    `db:"replaced_by_token" json:"-"`
	DeviceID   *string    `db:"device_id" json:"device_id,omitempty"`
}

// Live reports whether the token can still be exchanged at the given instant.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
