package service

import (
	"context"
	"errors"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// LoginService performs the first authentication factor. Every failure mode
// collapses into ErrInvalidCredentials so responses never reveal whether an
// identifier exists or an account is deactivated.
type LoginService struct {
	Users *UserService
}

// Authenticate checks identifier and password and returns the matching
// active user.
func (s *LoginService) Authenticate(ctx context.Context, identifier, password string) (domain.User, error) {
	if identifier == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	user, err := s.Users.FindByIdentifier(ctx, identifier)
	if errors.Is(err, ErrUserNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}

	if !s.Users.VerifyPassword(user, password) {
		return domain.User{}, ErrInvalidCredentials
	}
	if !user.IsActive {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}
