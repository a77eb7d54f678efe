package http

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

func seedTOTPSecret(t *testing.T) string {
	t.Helper()
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "HexPhish", AccountName: "test"})
	require.NoError(t, err)
	return key.Secret()
}

func withEnrolledTOTP(secret string) func(*domain.User) {
	return func(u *domain.User) {
		u.MFAMethod = domain.MFATOTP
		u.TOTPSecret = &secret
		u.MFAEnabled = true
	}
}

func TestLoginFlowWithTOTP(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	secret := seedTOTPSecret(t)
	env.seedUser("alice", "alice@example.test", "Password1!", withEnrolledTOTP(secret))

	resp := env.login("alice", "Password1!")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/mfa/verify", location(t, resp))

	t.Run("password factor alone grants nothing", func(t *testing.T) {
		resp := env.get("/dashboard")
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/login", location(t, resp))
	})

	t.Run("wrong code stays pending", func(t *testing.T) {
		token := env.csrfToken("/mfa/verify")
		resp := env.postForm("/mfa/verify", url.Values{
			"csrf_token": {token},
			"code":       {"000000"},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, body(t, resp), "Invalid or expired code")

		dash := env.get("/dashboard")
		require.Equal(t, http.StatusSeeOther, dash.StatusCode)
	})

	t.Run("correct code completes login", func(t *testing.T) {
		code, err := totp.GenerateCode(secret, time.Now())
		require.NoError(t, err)

		token := env.csrfToken("/mfa/verify")
		resp := env.postForm("/mfa/verify", url.Values{
			"csrf_token": {token},
			"code":       {code},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/dashboard", location(t, resp))

		dash := env.get("/dashboard")
		require.Equal(t, http.StatusOK, dash.StatusCode)
		require.Contains(t, body(t, dash), "alice")
	})

	t.Run("logout returns to anonymous", func(t *testing.T) {
		token := env.csrfToken("/dashboard")
		resp := env.postForm("/logout", url.Values{"csrf_token": {token}})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)

		dash := env.get("/dashboard")
		require.Equal(t, http.StatusSeeOther, dash.StatusCode)
		require.Equal(t, "/login", location(t, dash))
	})
}

func TestFirstLoginEnrollment(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.seedUser("bob", "bob@example.test", "Password1!")

	resp := env.login("bob", "Password1!")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/mfa/setup", location(t, resp))

	token := env.csrfToken("/mfa/setup")
	resp = env.postForm("/mfa/setup", url.Values{
		"csrf_token": {token},
		"method":     {"totp"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/mfa/verify", location(t, resp))

	t.Run("verify page shows enrollment material", func(t *testing.T) {
		page := env.get("/mfa/verify")
		require.Equal(t, http.StatusOK, page.StatusCode)
		require.Contains(t, body(t, page), "otpauth://totp/")
	})

	t.Run("qr endpoint serves a png while unconfirmed", func(t *testing.T) {
		qr := env.get("/mfa/qr.png")
		require.Equal(t, http.StatusOK, qr.StatusCode)
		require.Equal(t, "image/png", qr.Header.Get("Content-Type"))
	})

	t.Run("confirming enrollment completes login and hides the qr", func(t *testing.T) {
		stored, err := env.store.Users().GetUserByID(context.Background(), mustUserID(t, env, "bob"))
		require.NoError(t, err)
		require.NotNil(t, stored.TOTPSecret)

		code, err := totp.GenerateCode(*stored.TOTPSecret, time.Now())
		require.NoError(t, err)

		token := env.csrfToken("/mfa/verify")
		resp := env.postForm("/mfa/verify", url.Values{
			"csrf_token": {token},
			"code":       {code},
		})
		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/dashboard", location(t, resp))

		enabled, err := env.store.Users().GetUserByID(context.Background(), stored.ID)
		require.NoError(t, err)
		require.True(t, enabled.MFAEnabled)

		qr := env.get("/mfa/qr.png")
		require.NotEqual(t, http.StatusOK, qr.StatusCode)
	})
}

func TestEmailMFAFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	settings := domain.MailSettings{
		Host:      "smtp.example.test",
		Port:      587,
		UseTLS:    true,
		FromEmail: "no-reply@example.test",
		UpdatedAt: time.Now(),
	}
	require.NoError(t, env.store.MailSettings().UpsertMailSettings(context.Background(), settings))

	env.seedUser("carol", "carol@example.test", "Password1!", func(u *domain.User) {
		u.MFAMethod = domain.MFAEmail
		u.MFAEnabled = true
	})

	resp := env.login("carol", "Password1!")
	require.Equal(t, "/mfa/verify", location(t, resp))

	page := env.get("/mfa/verify")
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, body(t, page), "We sent a code")
	require.Len(t, env.mailer.messages(), 1)

	t.Run("reload reuses the active challenge", func(t *testing.T) {
		again := env.get("/mfa/verify")
		require.Equal(t, http.StatusOK, again.StatusCode)
		require.Len(t, env.mailer.messages(), 1)
	})
}

func mustUserID(t *testing.T, env *testEnv, identifier string) string {
	t.Helper()
	u, err := env.store.Users().GetUserByIdentifier(context.Background(), identifier)
	require.NoError(t, err)
	return u.ID
}
