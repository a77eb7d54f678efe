package service

import (
	"context"
	"errors"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/pkg/cryptox"
)

// DefaultCSRFTTL is how long a CSRF token is handed out before being rotated
// in place on the next read.
const DefaultCSRFTTL = 12 * time.Hour

// CSRFService hands out per-session anti-forgery tokens keyed by the opaque
// session identifier cookie, independent of login state.
type CSRFService struct {
	Store store.Store

	// TokenTTL bounds token age before rotation. Zero means DefaultCSRFTTL.
	TokenTTL time.Duration
}

func (s *CSRFService) tokenTTL() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return DefaultCSRFTTL
}

// TokenForSession returns the active token for the session key, creating one
// on first use and rotating in place once the current one ages past the TTL.
func (s *CSRFService) TokenForSession(ctx context.Context, sessionKey string, now time.Time) (string, error) {
	row, err := s.Store.CSRFTokens().GetBySessionKey(ctx, sessionKey)
	if errors.Is(err, store.ErrNotFound) {
		return s.createToken(ctx, sessionKey, now)
	}
	if err != nil {
		return "", err
	}

	if now.Sub(row.CreatedAt) <= s.tokenTTL() {
		return row.Token, nil
	}
	return s.rotateToken(ctx, sessionKey, now)
}

// Validate compares a submitted token against the session's current token in
// constant time. A missing row rejects.
func (s *CSRFService) Validate(ctx context.Context, sessionKey, supplied string) (bool, error) {
	if supplied == "" {
		return false, nil
	}
	row, err := s.Store.CSRFTokens().GetBySessionKey(ctx, sessionKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cryptox.ConstantTimeEquals(supplied, row.Token), nil
}

func (s *CSRFService) createToken(ctx context.Context, sessionKey string, now time.Time) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	err = s.Store.CSRFTokens().CreateToken(ctx, domain.CSRFToken{
		SessionKey: sessionKey,
		Token:      token,
		CreatedAt:  now,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// A concurrent request for the same session won the insert.
		row, err := s.Store.CSRFTokens().GetBySessionKey(ctx, sessionKey)
		if err != nil {
			return "", err
		}
		return row.Token, nil
	}
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *CSRFService) rotateToken(ctx context.Context, sessionKey string, now time.Time) (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		row, err := tx.CSRFTokens().GetBySessionKey(ctx, sessionKey)
		if err != nil {
			return err
		}
		if now.Sub(row.CreatedAt) <= s.tokenTTL() {
			// Another request rotated first; keep its token.
			token = row.Token
			return nil
		}
		return tx.CSRFTokens().RotateToken(ctx, sessionKey, token, now)
	})
	if err != nil {
		return "", err
	}
	return token, nil
}
