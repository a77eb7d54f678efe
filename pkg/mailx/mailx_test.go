package mailx

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigAddrDefaults(t *testing.T) {
	t.Parallel()

	require.Equal(t, "mail.example.test:25", Config{Host: "mail.example.test"}.Addr())
	require.Equal(t, "mail.example.test:587", Config{Host: "mail.example.test", UseTLS: true}.Addr())
	require.Equal(t, "mail.example.test:465", Config{Host: "mail.example.test", UseSSL: true}.Addr())
	require.Equal(t, "mail.example.test:2525", Config{Host: "mail.example.test", Port: 2525, UseSSL: true}.Addr())
}

func TestConfigReady(t *testing.T) {
	t.Parallel()

	require.False(t, Config{}.Ready())
	require.True(t, Config{Host: "mail.example.test"}.Ready())
}

func TestSendRequiresConfiguration(t *testing.T) {
	t.Parallel()

	m := &SMTPMailer{}
	err := m.Send(context.Background(), Config{}, Message{To: "a@example.test"})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestEncodeMessage(t *testing.T) {
	t.Parallel()

	raw := encodeMessage(Message{
		FromName:  "HexPhish",
		FromEmail: "no-reply@example.test",
		To:        "user@example.test",
		Subject:   "HexPhish access code",
		Body:      "line one\nline two\n",
	})

	// mail.Address always quotes a non-empty display name.
	require.Contains(t, raw, `From: "HexPhish" <no-reply@example.test>`)
	require.Contains(t, raw, "To: <user@example.test>")
	require.Contains(t, raw, "Subject: HexPhish access code")
	require.Contains(t, raw, "line one\r\nline two\r\n")

	headers, _, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found, "headers and body must be separated by a blank line")
	require.Contains(t, headers, "Content-Type: text/plain; charset=utf-8")
}
