package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
	"github.com/hexphish/hexphish/internal/hexphish/store"
	"github.com/hexphish/hexphish/internal/hexphish/store/drivers/sqlite"
	"github.com/hexphish/hexphish/pkg/cryptox"
	"github.com/hexphish/hexphish/pkg/idx"
	"github.com/hexphish/hexphish/pkg/mailx"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func seedUser(t *testing.T, st store.Store, username, email, password string, mutate ...func(*domain.User)) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(password)
	require.NoError(t, err)

	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		MFAMethod:    domain.MFANone,
	}
	for _, fn := range mutate {
		fn(&user)
	}

	require.NoError(t, st.Users().CreateUser(context.Background(), user))

	// Read back so store-side defaults (timestamps) are populated.
	stored, err := st.Users().GetUserByID(context.Background(), user.ID)
	require.NoError(t, err)
	return stored
}

func configureMail(t *testing.T, st store.Store) domain.MailSettings {
	t.Helper()

	settings := domain.MailSettings{
		Host:      "smtp.example.test",
		Port:      587,
		Username:  "console",
		Password:  "secret",
		UseTLS:    true,
		FromName:  "HexPhish",
		FromEmail: "no-reply@example.test",
		BaseURL:   "https://console.example.test",
		UpdatedAt: time.Now(),
	}
	require.NoError(t, st.MailSettings().UpsertMailSettings(context.Background(), settings))
	return settings
}

// recordingMailer captures outbound messages instead of dialing SMTP.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mailx.Message
	fail error
}

func (m *recordingMailer) Send(_ context.Context, _ mailx.Config, msg mailx.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) messages() []mailx.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailx.Message, len(m.sent))
	copy(out, m.sent)
	return out
}
