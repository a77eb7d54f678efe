package domain

import "time"

// MFAChallenge is a one-time emailed verification code. Only the SHA-256
// fingerprint of the 6-digit code is stored. A challenge is active while
// UsedAt is nil and ExpiresAt is in the future; validation always picks the
// most recently created active row for the user.
type MFAChallenge struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Active reports whether the challenge can still be redeemed at now.
func (c MFAChallenge) Active(now time.Time) bool {
	return c.UsedAt == nil && c.ExpiresAt.After(now)
}

// PasswordResetToken stores the fingerprint of an emailed reset link token.
// Issuing a new token marks all prior unused tokens for the user as used, so
// at most one is redeemable at any time.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Active reports whether the token can still be redeemed at now.
func (t PasswordResetToken) Active(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}

// CSRFToken is keyed by the anonymous session cookie value, one row per
// session key. The token is stored clear (it is compared, not looked up by
// secret) and rotated in place once it passes its TTL.
type CSRFToken struct {
	SessionKey string
	Token      string
	CreatedAt  time.Time
}
