package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

func TestRequestResetDoesNotRevealAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	svc := &PasswordResetService{Store: st, Mailer: mailer}

	configureMail(t, st)
	seedUser(t, st, "alice", "alice@example.test", "Password1!")

	require.NoError(t, svc.RequestReset(ctx, "alice@example.test", now))
	require.NoError(t, svc.RequestReset(ctx, "nobody@example.test", now))

	// Only the real account got mail, but both calls looked identical to
	// the requester.
	require.Len(t, mailer.messages(), 1)
	require.Equal(t, "alice@example.test", mailer.messages()[0].To)
}

func TestRequestResetSkipsInactiveUsers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	svc := &PasswordResetService{Store: st, Mailer: mailer}

	configureMail(t, st)
	seedUser(t, st, "gone", "gone@example.test", "Password1!", func(u *domain.User) {
		u.IsActive = false
	})

	require.NoError(t, svc.RequestReset(ctx, "gone@example.test", time.Now()))
	require.Empty(t, mailer.messages())
}

func TestResetTokenSupersede(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	svc := &PasswordResetService{Store: st, Mailer: mailer}

	configureMail(t, st)
	seedUser(t, st, "bob", "bob@example.test", "Password1!")

	require.NoError(t, svc.RequestReset(ctx, "bob@example.test", now))
	first := extractToken(t, mailer.messages()[0].Body)

	require.NoError(t, svc.RequestReset(ctx, "bob@example.test", now.Add(time.Minute)))
	second := extractToken(t, mailer.messages()[1].Body)

	// The first link dies the moment the second is issued, well inside its
	// original TTL.
	_, err := svc.ValidateToken(ctx, first, now.Add(2*time.Minute))
	require.ErrorIs(t, err, ErrResetTokenInvalid)

	user, err := svc.ValidateToken(ctx, second, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, "bob", user.Username)
}

func TestCompleteReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	svc := &PasswordResetService{Store: st, Mailer: mailer}
	users := &UserService{Store: st}

	configureMail(t, st)
	seeded := seedUser(t, st, "carol", "carol@example.test", "OldPassword1!")

	require.NoError(t, svc.RequestReset(ctx, "carol@example.test", now))
	token := extractToken(t, mailer.messages()[0].Body)

	require.NoError(t, svc.CompleteReset(ctx, token, "NewPassword1!", now.Add(time.Minute)))

	t.Run("password changed and binding rotated", func(t *testing.T) {
		stored, err := st.Users().GetUserByID(ctx, seeded.ID)
		require.NoError(t, err)
		require.True(t, users.VerifyPassword(stored, "NewPassword1!"))
		require.False(t, users.VerifyPassword(stored, "OldPassword1!"))
		require.NotNil(t, stored.SessionToken)
	})

	t.Run("token is single use", func(t *testing.T) {
		err := svc.CompleteReset(ctx, token, "AnotherPassword1!", now.Add(2*time.Minute))
		require.ErrorIs(t, err, ErrResetTokenInvalid)
	})
}

func TestResetTokenExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	svc := &PasswordResetService{Store: st, Mailer: mailer}

	configureMail(t, st)
	seedUser(t, st, "dave", "dave@example.test", "Password1!")

	require.NoError(t, svc.RequestReset(ctx, "dave@example.test", now))
	token := extractToken(t, mailer.messages()[0].Body)

	_, err := svc.ValidateToken(ctx, token, now.Add(DefaultResetTTL+time.Second))
	require.ErrorIs(t, err, ErrResetTokenInvalid)
}

// extractToken pulls the reset token out of the emailed link.
func extractToken(t *testing.T, body string) string {
	t.Helper()
	for _, field := range strings.Fields(body) {
		if i := strings.LastIndex(field, "/reset-password/"); i >= 0 {
			return field[i+len("/reset-password/"):]
		}
	}
	t.Fatalf("no reset link found in body: %q", body)
	return ""
}
