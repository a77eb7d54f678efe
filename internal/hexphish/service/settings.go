package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/pkg/mailx"
)

var ErrInvalidMailSettings = errors.New("invalid mail settings")

// MailSettingsService manages the singleton outbound-SMTP configuration and
// the send-test path used by the settings page.
type MailSettingsService struct {
	Store  store.Store
	Mailer mailx.Mailer
}

// Get returns the stored settings, or a zero value when none were saved yet.
func (s *MailSettingsService) Get(ctx context.Context) (domain.MailSettings, error) {
	settings, err := s.Store.MailSettings().GetMailSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MailSettings{}, nil
	}
	return settings, err
}

// Update validates and persists the settings.
func (s *MailSettingsService) Update(ctx context.Context, settings domain.MailSettings, now time.Time) error {
	if settings.UseTLS && settings.UseSSL {
		return ErrInvalidMailSettings
	}
	if settings.Port < 0 || settings.Port > 65535 {
		return ErrInvalidMailSettings
	}
	settings.Host = strings.TrimSpace(settings.Host)
	settings.FromEmail = strings.ToLower(strings.TrimSpace(settings.FromEmail))
	settings.BaseURL = strings.TrimSpace(settings.BaseURL)
	settings.UpdatedAt = now

	return s.Store.MailSettings().UpsertMailSettings(ctx, settings)
}

// SendWelcome emails a new account's credentials when mail is configured.
func (s *MailSettingsService) SendWelcome(ctx context.Context, user domain.User, password string) error {
	settings, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.Ready() {
		return mailx.ErrNotConfigured
	}
	return s.Mailer.Send(ctx, smtpConfig(settings), welcomeEmail(settings, user, password))
}

// SendTest delivers a test message to the given address with the currently
// stored settings.
func (s *MailSettingsService) SendTest(ctx context.Context, to string) error {
	settings, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if !settings.Ready() {
		return mailx.ErrNotConfigured
	}
	return s.Mailer.Send(ctx, smtpConfig(settings), testEmail(settings, to))
}
