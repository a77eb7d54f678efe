package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/pkg/cryptox"
	"github.com/hexphish/hexphish/pkg/idx"
	"github.com/hexphish/hexphish/pkg/mailx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

// DefaultResetTTL is how long an emailed password reset link stays valid.
const DefaultResetTTL = 2 * time.Hour

var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

// PasswordResetService issues and redeems single-use password reset tokens.
// Only the SHA-256 fingerprint of a token is stored; the plaintext exists
// solely inside the emailed link.
type PasswordResetService struct {
	Store  store.Store
	Mailer mailx.Mailer

	// TokenTTL bounds reset link validity. Zero means DefaultResetTTL.
	TokenTTL time.Duration
}

func (s *PasswordResetService) tokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return DefaultResetTTL
}

// RequestReset mints and emails a reset link for the account matching email.
// The outcome is identical from the caller's perspective whether or not the
// account exists, so the endpoint can't be used to enumerate users. Issuing
// supersedes any earlier active tokens for the same account.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string, now time.Time) error {
	log := slogx.FromContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}

	settings, err := s.Store.MailSettings().GetMailSettings(ctx)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !settings.Ready()) {
		log.Warn("reset requested but mail is not configured", "user_id", user.ID)
		return nil
	}
	if err != nil {
		return err
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ResetTokens().SupersedeUserResetTokens(ctx, user.ID, now); err != nil {
			return err
		}
		return tx.ResetTokens().CreateResetToken(ctx, domain.PasswordResetToken{
			ID:        idx.New().String(),
			UserID:    user.ID,
			TokenHash: cryptox.FingerprintToken(token),
			ExpiresAt: now.Add(s.tokenTTL()),
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}

	link := s.resetLink(settings, token)
	if err := s.Mailer.Send(ctx, smtpConfig(settings), resetEmail(settings, user, link)); err != nil {
		// Swallowed so the response stays indistinguishable from the
		// unknown-address case. The token expires on its own.
		log.Error("reset mail failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// ValidateToken resolves a plaintext reset token to its account without
// consuming it, for rendering the reset form.
func (s *PasswordResetService) ValidateToken(ctx context.Context, token string, now time.Time) (domain.User, error) {
	row, err := s.Store.ResetTokens().GetActiveResetTokenByHash(ctx, cryptox.FingerprintToken(token), now)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrResetTokenInvalid
	}
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.Store.Users().GetUserByID(ctx, row.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrResetTokenInvalid
	}
	if err != nil {
		return domain.User{}, err
	}
	if !user.IsActive {
		return domain.User{}, ErrResetTokenInvalid
	}
	return user, nil
}

// CompleteReset consumes the token and sets the new password in one
// transaction. The session binding token rotates as well, signing the user
// out everywhere.
func (s *PasswordResetService) CompleteReset(ctx context.Context, token, newPassword string, now time.Time) error {
	hash, err := cryptox.HashPassword(newPassword)
	if err != nil {
		return err
	}
	binding, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		row, err := tx.ResetTokens().GetActiveResetTokenByHash(ctx, cryptox.FingerprintToken(token), now)
		if errors.Is(err, store.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		if err != nil {
			return err
		}

		user, err := tx.Users().GetUserByID(ctx, row.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return ErrResetTokenInvalid
		}

		if err := tx.ResetTokens().MarkResetTokenUsed(ctx, row.ID, now); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, user.ID, hash, false); err != nil {
			return err
		}
		return tx.Users().UpdateSessionToken(ctx, user.ID, binding)
	})
}

func (s *PasswordResetService) resetLink(settings domain.MailSettings, token string) string {
	base := strings.TrimRight(settings.BaseURL, "/")
	if base == "" {
		base = "http://localhost:8080"
	}
	return fmt.Sprintf("%s/reset-password/%s", base, token)
}
