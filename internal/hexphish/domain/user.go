package domain

import "time"

// MFAMethod selects the second factor configured for a user.
type MFAMethod string

const (
	MFANone  MFAMethod = "none"
	MFATOTP  MFAMethod = "totp"
	MFAEmail MFAMethod = "email"
)

// ParseMFAMethod validates a user-supplied method string.
func ParseMFAMethod(s string) (MFAMethod, bool) {
	switch MFAMethod(s) {
	case MFANone, MFATOTP, MFAEmail:
		return MFAMethod(s), true
	}
	return MFANone, false
}

// User is the identity record.
//
// MFAEnabled distinguishes "method selected, not yet confirmed" from "fully
// enrolled": it only flips true on the first successful verification.
// SessionToken is the opaque binding value mirrored into the cookie session;
// rotating it invalidates every other outstanding session for the user.
type User struct {
	ID                 string
	Username           string
	Email              string
	PasswordHash       string // argon2id PHC encoded
	IsAdmin            bool
	IsActive           bool
	MustChangePassword bool
	MFAMethod          MFAMethod
	TOTPSecret         *string // base32, present only for the totp method
	MFAEnabled         bool
	SessionToken       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
