package store

import (
	"context"
	"errors"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable. Every coordination invariant in the auth core (single active
// challenge, single usable reset token, one CSRF row per session) is
// enforced through these repositories inside transactions, never with
// in-memory locks.
type Store interface {
	Users() Users
	MFAChallenges() MFAChallenges
	ResetTokens() ResetTokens
	CSRFTokens() CSRFTokens
	MailSettings() MailSettings

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and
	// rolling back on error. This is the recommended way to run multi-step
	// operations such as "supersede then insert".
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByIdentifier matches the identifier case-insensitively against
	// username OR email.
	GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error)

	// GetUserByEmail matches the email case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists on a username or email collision.
	CreateUser(ctx context.Context, u domain.User) error

	// ListUsers returns all users, newest first.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// UpdatePasswordHash sets the password_hash and the
	// must_change_password flag, bumping updated_at.
	UpdatePasswordHash(ctx context.Context, userID, newHash string, mustChange bool) error

	// UpdateSessionToken sets the session binding token.
	UpdateSessionToken(ctx context.Context, userID, token string) error

	// UpdateMFAMethod sets the method and TOTP secret (nil clears it) and
	// resets mfa_enabled to false. Enrollment confirmation re-enables it.
	UpdateMFAMethod(ctx context.Context, userID string, method domain.MFAMethod, secret *string) error

	// EnableMFA marks the currently selected method as confirmed.
	EnableMFA(ctx context.Context, userID string) error

	// ClearMFA resets the user to no MFA: method none, secret null,
	// mfa_enabled false.
	ClearMFA(ctx context.Context, userID string) error

	// SetActive flips the account active flag.
	SetActive(ctx context.Context, userID string, active bool) error

	// SetMustChangePassword flips the forced-change flag.
	SetMustChangePassword(ctx context.Context, userID string, mustChange bool) error

	// DeleteUser removes the user; challenges and reset tokens cascade.
	DeleteUser(ctx context.Context, userID string) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type MFAChallenges interface {
	// CreateChallenge stores a freshly minted emailed-code challenge.
	CreateChallenge(ctx context.Context, c domain.MFAChallenge) error

	// GetActiveChallenge returns the newest unused, unexpired challenge for
	// the user, or ErrNotFound.
	GetActiveChallenge(ctx context.Context, userID string, now time.Time) (domain.MFAChallenge, error)

	// MarkChallengeUsed sets used_at. Marking an already-used challenge is
	// a no-op.
	MarkChallengeUsed(ctx context.Context, id string, usedAt time.Time) error

	// DeleteExpiredChallenges is housekeeping.
	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

type ResetTokens interface {
	// CreateResetToken stores a new reset token record.
	CreateResetToken(ctx context.Context, t domain.PasswordResetToken) error

	// GetActiveResetTokenByHash returns the newest unused, unexpired token
	// matching the fingerprint, or ErrNotFound.
	GetActiveResetTokenByHash(ctx context.Context, hash string, now time.Time) (domain.PasswordResetToken, error)

	// SupersedeUserResetTokens marks every unused token for the user as
	// used. Run inside the same transaction as the subsequent insert.
	SupersedeUserResetTokens(ctx context.Context, userID string, usedAt time.Time) error

	// MarkResetTokenUsed sets used_at on a single token.
	MarkResetTokenUsed(ctx context.Context, id string, usedAt time.Time) error

	// DeleteExpiredResetTokens is housekeeping.
	DeleteExpiredResetTokens(ctx context.Context, now time.Time) error
}

type CSRFTokens interface {
	// GetBySessionKey returns the token row for an anonymous session key.
	GetBySessionKey(ctx context.Context, sessionKey string) (domain.CSRFToken, error)

	// CreateToken inserts the row for a session key. Returns
	// ErrAlreadyExists if a concurrent request won the insert race.
	CreateToken(ctx context.Context, t domain.CSRFToken) error

	// RotateToken replaces the token value and creation time in place,
	// keeping the unique session_key row.
	RotateToken(ctx context.Context, sessionKey, token string, createdAt time.Time) error

	// DeleteStaleTokens drops rows not rotated since the cutoff
	// (housekeeping for abandoned anonymous sessions).
	DeleteStaleTokens(ctx context.Context, cutoff time.Time) error
}

type MailSettings interface {
	// GetMailSettings returns the singleton settings row, or ErrNotFound
	// before first configuration.
	GetMailSettings(ctx context.Context) (domain.MailSettings, error)

	// UpsertMailSettings creates or replaces the singleton row.
	UpsertMailSettings(ctx context.Context, s domain.MailSettings) error
}
