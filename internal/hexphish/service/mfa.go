package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"net/url"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/pkg/cryptox"
	"github.com/hexphish/hexphish/pkg/idx"
	"github.com/hexphish/hexphish/pkg/mailx"
	"github.com/hexphish/hexphish/pkg/slogx"
)

const (
	// DefaultChallengeTTL is how long an emailed access code stays valid.
	DefaultChallengeTTL = 10 * time.Minute

	challengeCodeLength = 6
	totpPeriod          = 30
)

var (
	ErrInvalidCode       = errors.New("invalid or expired code")
	ErrMailNotConfigured = errors.New("mail delivery is not configured")
	ErrMailDelivery      = errors.New("mail delivery failed")
	ErrNotEnrollable     = errors.New("enrollment material unavailable")
)

// MFAService runs second-factor enrollment and verification. TOTP codes are
// checked locally against the stored secret; email codes round-trip through
// the challenge table in the store.
type MFAService struct {
	Store  store.Store
	Mailer mailx.Mailer

	// Issuer labels provisioning URIs in authenticator apps.
	Issuer string

	// ChallengeTTL bounds emailed code validity. Zero means DefaultChallengeTTL.
	ChallengeTTL time.Duration
}

func (s *MFAService) challengeTTL() time.Duration {
	if s.ChallengeTTL > 0 {
		return s.ChallengeTTL
	}
	return DefaultChallengeTTL
}

// SelectMethod records the user's chosen second factor and prepares the
// enrollment material for it. Choosing TOTP mints a fresh secret unless a
// pending (not yet confirmed) TOTP enrollment already exists; choosing email
// requires working mail settings. Either way mfa_enabled resets to false
// until the first successful verification.
func (s *MFAService) SelectMethod(ctx context.Context, user domain.User, method domain.MFAMethod) (domain.User, error) {
	switch method {
	case domain.MFATOTP:
		if user.MFAMethod == domain.MFATOTP && !user.MFAEnabled && user.TOTPSecret != nil {
			// Keep the pending secret so a half-finished enrollment can
			// resume with the same QR code.
			return user, nil
		}

		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.Issuer,
			AccountName: user.Username,
			Period:      totpPeriod,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return domain.User{}, fmt.Errorf("generate totp secret: %w", err)
		}

		secret := key.Secret()
		if err := s.Store.Users().UpdateMFAMethod(ctx, user.ID, domain.MFATOTP, &secret); err != nil {
			return domain.User{}, err
		}

		user.MFAMethod = domain.MFATOTP
		user.TOTPSecret = &secret
		user.MFAEnabled = false
		return user, nil

	case domain.MFAEmail:
		settings, err := s.mailSettings(ctx)
		if err != nil {
			return domain.User{}, err
		}
		if !settings.Ready() {
			return domain.User{}, ErrMailNotConfigured
		}

		if err := s.Store.Users().UpdateMFAMethod(ctx, user.ID, domain.MFAEmail, nil); err != nil {
			return domain.User{}, err
		}

		user.MFAMethod = domain.MFAEmail
		user.TOTPSecret = nil
		user.MFAEnabled = false
		return user, nil

	default:
		return domain.User{}, fmt.Errorf("unsupported mfa method %q", method)
	}
}

// ProvisioningURI returns the otpauth URI for the user's pending TOTP
// enrollment. Once the enrollment is confirmed the secret is never shown
// again. The URI is assembled by hand because the stored secret is already
// base32.
func (s *MFAService) ProvisioningURI(user domain.User) (string, error) {
	if user.MFAMethod != domain.MFATOTP || user.TOTPSecret == nil || user.MFAEnabled {
		return "", ErrNotEnrollable
	}

	v := url.Values{}
	v.Set("secret", *user.TOTPSecret)
	v.Set("issuer", s.Issuer)
	v.Set("period", strconv.Itoa(totpPeriod))
	v.Set("algorithm", "SHA1")
	v.Set("digits", "6")

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + s.Issuer + ":" + user.Username,
		RawQuery: v.Encode(),
	}
	return u.String(), nil
}

// EnrollmentQR renders the pending enrollment's provisioning URI as a PNG
// for scanning into an authenticator app.
func (s *MFAService) EnrollmentQR(user domain.User) ([]byte, error) {
	uri, err := s.ProvisioningURI(user)
	if err != nil {
		return nil, err
	}

	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse provisioning uri: %w", err)
	}

	img, err := key.Image(200, 200)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}

// EnsureEmailChallenge guarantees an active emailed code exists for the user.
// If one is already outstanding nothing is sent again; otherwise a fresh code
// is minted, its fingerprint persisted and the plaintext dispatched by mail.
// Returns true when a new code was sent.
func (s *MFAService) EnsureEmailChallenge(ctx context.Context, user domain.User, now time.Time) (bool, error) {
	settings, err := s.mailSettings(ctx)
	if err != nil {
		return false, err
	}
	if !settings.Ready() {
		return false, ErrMailNotConfigured
	}

	code, err := cryptox.GenerateNumericCode(challengeCodeLength)
	if err != nil {
		return false, err
	}

	created := false
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.MFAChallenges().GetActiveChallenge(ctx, user.ID, now)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		created = true
		return tx.MFAChallenges().CreateChallenge(ctx, domain.MFAChallenge{
			ID:        idx.New().String(),
			UserID:    user.ID,
			CodeHash:  cryptox.FingerprintToken(code),
			ExpiresAt: now.Add(s.challengeTTL()),
			CreatedAt: now,
		})
	})
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	// The insert is committed before dispatch. A send failure leaves an
	// unusable challenge behind that expires on its own.
	if err := s.Mailer.Send(ctx, smtpConfig(settings), mfaCodeEmail(settings, user, code)); err != nil {
		slogx.FromContext(ctx).Error("mfa challenge mail failed", "user_id", user.ID, "error", err)
		return false, fmt.Errorf("%w: %w", ErrMailDelivery, err)
	}
	return true, nil
}

// VerifyCode checks a submitted second-factor code against the user's method.
// The first successful verification flips mfa_enabled, completing enrollment.
func (s *MFAService) VerifyCode(ctx context.Context, user domain.User, code string, now time.Time) error {
	switch user.MFAMethod {
	case domain.MFATOTP:
		if user.TOTPSecret == nil {
			return ErrInvalidCode
		}
		ok, err := totp.ValidateCustom(code, *user.TOTPSecret, now, totp.ValidateOpts{
			Period:    totpPeriod,
			Skew:      1,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil || !ok {
			return ErrInvalidCode
		}

	case domain.MFAEmail:
		// Consuming the challenge and confirming enrollment commit together
		// so a store failure cannot burn the one-time code without enabling.
		return s.Store.WithTx(ctx, func(tx store.Tx) error {
			challenge, err := tx.MFAChallenges().GetActiveChallenge(ctx, user.ID, now)
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidCode
			}
			if err != nil {
				return err
			}
			if !cryptox.ConstantTimeEquals(cryptox.FingerprintToken(code), challenge.CodeHash) {
				return ErrInvalidCode
			}
			if err := tx.MFAChallenges().MarkChallengeUsed(ctx, challenge.ID, now); err != nil {
				return err
			}
			if !user.MFAEnabled {
				return tx.Users().EnableMFA(ctx, user.ID)
			}
			return nil
		})

	default:
		return ErrInvalidCode
	}

	if !user.MFAEnabled {
		return s.Store.Users().EnableMFA(ctx, user.ID)
	}
	return nil
}

func (s *MFAService) mailSettings(ctx context.Context) (domain.MailSettings, error) {
	settings, err := s.Store.MailSettings().GetMailSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MailSettings{}, nil
	}
	return settings, err
}
