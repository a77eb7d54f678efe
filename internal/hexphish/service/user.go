package service

import (
	"context"
	"errors"
	"strings"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/pkg/cryptox"
	"github.com/hexphish/hexphish/pkg/idx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

var (
	ErrUserExists   = errors.New("username or email already in use")
	ErrUserNotFound = errors.New("user not found")
)

// UserService owns the credential-store operations: identifier lookup,
// password verification and rotation of the session binding token.
type UserService struct {
	Store store.Store
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// FindByIdentifier matches a login identifier case-insensitively against
// username or email.
func (s *UserService) FindByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return domain.User{}, ErrUserNotFound
	}

	u, err := s.Store.Users().GetUserByIdentifier(ctx, identifier)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// VerifyPassword reports whether plaintext matches the user's stored hash.
func (s *UserService) VerifyPassword(user domain.User, plaintext string) bool {
	return cryptox.VerifyPassword(plaintext, user.PasswordHash) == nil
}

// SetPassword rehashes and stores a new password. must_change_password is
// cleared unless the caller explicitly keeps it set (admin resets do).
func (s *UserService) SetPassword(ctx context.Context, userID, plaintext string, mustChange bool) error {
	hash, err := cryptox.HashPassword(plaintext)
	if err != nil {
		return err
	}
	return s.Store.Users().UpdatePasswordHash(ctx, userID, hash, mustChange)
}

// RotateSessionToken generates a fresh binding token, persists it on the user
// record and returns it for binding into the current session. Every other
// outstanding session becomes stale the moment this commits.
func (s *UserService) RotateSessionToken(ctx context.Context, userID string) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}
	if err := s.Store.Users().UpdateSessionToken(ctx, userID, token); err != nil {
		return "", err
	}
	return token, nil
}

// CreateUser provisions an account with a generated initial password and
// must_change_password set. The plaintext password is returned once so the
// caller can deliver it to the new user.
func (s *UserService) CreateUser(ctx context.Context, username, email string, isAdmin bool) (domain.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	password, err := cryptox.GeneratePassword()
	if err != nil {
		return domain.User{}, "", err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}

	user := domain.User{
		ID:                 idx.New().String(),
		Username:           username,
		Email:              email,
		PasswordHash:       hash,
		IsAdmin:            isAdmin,
		IsActive:           true,
		MustChangePassword: true,
		MFAMethod:          domain.MFANone,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, "", ErrUserExists
		}
		return domain.User{}, "", err
	}

	return user, password, nil
}

// AdminResetPassword sets a generated password and forces a change on next
// login. Returns the plaintext for one-time delivery.
func (s *UserService) AdminResetPassword(ctx context.Context, userID string) (string, error) {
	password, err := cryptox.GeneratePassword()
	if err != nil {
		return "", err
	}
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return "", err
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, userID, hash, true); err != nil {
		return "", err
	}
	return password, nil
}

// SetActive activates or deactivates an account. Deactivation takes effect
// on the user's very next request via the session gate.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	return s.Store.Users().SetActive(ctx, userID, active)
}

// ResetMFA clears the user's MFA enrollment and rotates the session binding
// token in the same transaction, so every live session is evicted and the
// next login re-runs enrollment.
func (s *UserService) ResetMFA(ctx context.Context, userID string) error {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().ClearMFA(ctx, userID); err != nil {
			return err
		}
		return tx.Users().UpdateSessionToken(ctx, userID, token)
	})
}

// DeleteUser removes the account; challenges and reset tokens cascade.
func (s *UserService) DeleteUser(ctx context.Context, userID string) error {
	return s.Store.Users().DeleteUser(ctx, userID)
}

// ListUsers returns all accounts, newest first.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Store.Users().ListUsers(ctx)
}

// EnsureDefaultAdmin creates the bootstrap admin account when the user table
// is empty. The generated password is logged once and must be changed on
// first login.
func (s *UserService) EnsureDefaultAdmin(ctx context.Context) error {
	log := slogx.FromContext(ctx)

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty {
		return nil
	}

	user, password, err := s.CreateUser(ctx, "admin", "admin@hexphish.local", true)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			// A concurrent boot created it first.
			return nil
		}
		return err
	}

	log.Info("bootstrap admin account created",
		"username", user.Username,
		"initial_password", password,
	)
	return nil
}
