package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
)

func TestSelectMethodTOTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := &MFAService{Store: st, Mailer: &recordingMailer{}, Issuer: "HexPhish"}

	user := seedUser(t, st, "alice", "alice@example.test", "Password1!")

	enrolled, err := svc.SelectMethod(ctx, user, domain.MFATOTP)
	require.NoError(t, err)
	require.Equal(t, domain.MFATOTP, enrolled.MFAMethod)
	require.NotNil(t, enrolled.TOTPSecret)
	require.False(t, enrolled.MFAEnabled)

	t.Run("pending enrollment keeps its secret", func(t *testing.T) {
		again, err := svc.SelectMethod(ctx, enrolled, domain.MFATOTP)
		require.NoError(t, err)
		require.Equal(t, *enrolled.TOTPSecret, *again.TOTPSecret)
	})

	t.Run("provisioning uri names the account and issuer", func(t *testing.T) {
		uri, err := svc.ProvisioningURI(enrolled)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(uri, "otpauth://totp/"))
		require.Contains(t, uri, "alice")
		require.Contains(t, uri, "issuer=HexPhish")
	})

	t.Run("qr renders a png", func(t *testing.T) {
		img, err := svc.EnrollmentQR(enrolled)
		require.NoError(t, err)
		require.Equal(t, "\x89PNG", string(img[:4]))
	})
}

func TestSelectMethodEmailRequiresMailConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st := newTestStore(t)
	svc := &MFAService{Store: st, Mailer: &recordingMailer{}, Issuer: "HexPhish"}
	user := seedUser(t, st, "bob", "bob@example.test", "Password1!")

	_, err := svc.SelectMethod(ctx, user, domain.MFAEmail)
	require.ErrorIs(t, err, ErrMailNotConfigured)

	configureMail(t, st)

	enrolled, err := svc.SelectMethod(ctx, user, domain.MFAEmail)
	require.NoError(t, err)
	require.Equal(t, domain.MFAEmail, enrolled.MFAMethod)
	require.Nil(t, enrolled.TOTPSecret)
	require.False(t, enrolled.MFAEnabled)
}

func TestTOTPVerificationRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	svc := &MFAService{Store: st, Mailer: &recordingMailer{}, Issuer: "HexPhish"}

	user := seedUser(t, st, "carol", "carol@example.test", "Password1!")
	enrolled, err := svc.SelectMethod(ctx, user, domain.MFATOTP)
	require.NoError(t, err)

	t.Run("wrong code rejects and stays unconfirmed", func(t *testing.T) {
		err := svc.VerifyCode(ctx, enrolled, "000000", now)
		require.ErrorIs(t, err, ErrInvalidCode)

		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.False(t, stored.MFAEnabled)
	})

	t.Run("correct code confirms enrollment", func(t *testing.T) {
		code, err := totp.GenerateCode(*enrolled.TOTPSecret, now)
		require.NoError(t, err)

		require.NoError(t, svc.VerifyCode(ctx, enrolled, code, now))

		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, stored.MFAEnabled)
		require.Equal(t, domain.MFATOTP, stored.MFAMethod)
	})

	t.Run("adjacent time step is accepted", func(t *testing.T) {
		code, err := totp.GenerateCode(*enrolled.TOTPSecret, now.Add(-30*time.Second))
		require.NoError(t, err)
		require.NoError(t, svc.VerifyCode(ctx, enrolled, code, now))
	})
}

func TestEmailChallengeLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	svc := &MFAService{Store: st, Mailer: mailer, Issuer: "HexPhish"}

	configureMail(t, st)
	user := seedUser(t, st, "dave", "dave@example.test", "Password1!", func(u *domain.User) {
		u.MFAMethod = domain.MFAEmail
	})

	sent, err := svc.EnsureEmailChallenge(ctx, user, now)
	require.NoError(t, err)
	require.True(t, sent)
	require.Len(t, mailer.messages(), 1)
	require.Equal(t, "dave@example.test", mailer.messages()[0].To)

	t.Run("active challenge is reused, not resent", func(t *testing.T) {
		sent, err := svc.EnsureEmailChallenge(ctx, user, now.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, sent)
		require.Len(t, mailer.messages(), 1)
	})

	t.Run("wrong code rejects", func(t *testing.T) {
		require.ErrorIs(t, svc.VerifyCode(ctx, user, "000000", now), ErrInvalidCode)
	})

	t.Run("emailed code verifies once and flips enrollment", func(t *testing.T) {
		code := extractCode(t, mailer.messages()[0].Body)

		require.NoError(t, svc.VerifyCode(ctx, user, code, now.Add(time.Minute)))

		stored, err := st.Users().GetUserByID(ctx, user.ID)
		require.NoError(t, err)
		require.True(t, stored.MFAEnabled)

		// Consumed challenge cannot be replayed.
		require.ErrorIs(t, svc.VerifyCode(ctx, stored, code, now.Add(2*time.Minute)), ErrInvalidCode)
	})

	t.Run("expired challenge rejects", func(t *testing.T) {
		sent, err := svc.EnsureEmailChallenge(ctx, user, now.Add(5*time.Minute))
		require.NoError(t, err)
		require.True(t, sent)

		code := extractCode(t, mailer.messages()[1].Body)
		late := now.Add(5*time.Minute + DefaultChallengeTTL + time.Second)
		require.ErrorIs(t, svc.VerifyCode(ctx, user, code, late), ErrInvalidCode)
	})
}

func TestEmailChallengeDeliveryFailureLeavesStateConsistent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{fail: errors.New("smtp: connection refused")}
	svc := &MFAService{Store: st, Mailer: mailer, Issuer: "HexPhish"}

	configureMail(t, st)
	user := seedUser(t, st, "erin", "erin@example.test", "Password1!", func(u *domain.User) {
		u.MFAMethod = domain.MFAEmail
	})

	_, err := svc.EnsureEmailChallenge(ctx, user, now)
	require.ErrorIs(t, err, ErrMailDelivery)

	// The committed challenge survives; the retry reuses it instead of
	// minting a second active code.
	mailer.fail = nil
	sent, err := svc.EnsureEmailChallenge(ctx, user, now.Add(time.Second))
	require.NoError(t, err)
	require.False(t, sent)
}

func TestEmailVerificationFailureDoesNotBurnCode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	st := newTestStore(t)
	mailer := &recordingMailer{}
	broken := &enableFailStore{Store: st}
	svc := &MFAService{Store: broken, Mailer: mailer, Issuer: "HexPhish"}

	configureMail(t, st)
	user := seedUser(t, st, "frank", "frank@example.test", "Password1!", func(u *domain.User) {
		u.MFAMethod = domain.MFAEmail
	})

	sent, err := svc.EnsureEmailChallenge(ctx, user, now)
	require.NoError(t, err)
	require.True(t, sent)
	code := extractCode(t, mailer.messages()[0].Body)

	// The enrollment update fails inside the transaction, so consuming the
	// challenge must roll back with it.
	require.ErrorIs(t, svc.VerifyCode(ctx, user, code, now), errEnableFail)

	stored, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, stored.MFAEnabled)

	// The same code still works once the store recovers.
	healthy := &MFAService{Store: st, Mailer: mailer, Issuer: "HexPhish"}
	require.NoError(t, healthy.VerifyCode(ctx, user, code, now.Add(time.Second)))

	stored, err = st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, stored.MFAEnabled)
}

var errEnableFail = errors.New("store: write failed")

// enableFailStore fails every EnableMFA update issued inside a transaction.
type enableFailStore struct {
	store.Store
}

func (s *enableFailStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		return fn(&enableFailTx{baseTx: tx})
	})
}

// baseTx aliases store.Tx so embedding it does not create a field named Tx
// that would shadow the promoted Tx method from the embedded Store interface.
type baseTx = store.Tx

type enableFailTx struct {
	baseTx
}

func (t *enableFailTx) Users() store.Users {
	return &enableFailUsers{Users: t.baseTx.Users()}
}

type enableFailUsers struct {
	store.Users
}

func (u *enableFailUsers) EnableMFA(ctx context.Context, userID string) error {
	return errEnableFail
}

// extractCode pulls the six-digit code out of a challenge email body.
func extractCode(t *testing.T, body string) string {
	t.Helper()
	for _, field := range strings.Fields(body) {
		if len(field) == 6 {
			digits := true
			for _, r := range field {
				if r < '0' || r > '9' {
					digits = false
					break
				}
			}
			if digits {
				return field
			}
		}
	}
	t.Fatalf("no code found in body: %q", body)
	return ""
}
