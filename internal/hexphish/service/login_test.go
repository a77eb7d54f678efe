package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := &LoginService{Users: &UserService{Store: st}}

	seedUser(t, st, "alice", "alice@example.test", "Password1!")
	seedUser(t, st, "frozen", "frozen@example.test", "Password1!", func(u *domain.User) {
		u.IsActive = false
	})

	t.Run("accepts username", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "alice", "Password1!")
		require.NoError(t, err)
		require.Equal(t, "alice", user.Username)
	})

	t.Run("accepts email, case-insensitively", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "ALICE@example.test", "Password1!")
		require.NoError(t, err)
		require.Equal(t, "alice", user.Username)
	})

	// Unknown identifier, wrong password and deactivated account are
	// indistinguishable to the caller.
	t.Run("unknown identifier", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "mallory", "Password1!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice", "WrongPassword!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("deactivated account", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "frozen", "Password1!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
