// Package mailx delivers outbound mail over SMTP. The auth core only needs a
// narrow collaborator: given a server configuration and a message, send it
// synchronously and report failure without retrying.
package mailx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// ErrNotConfigured is returned when a send is attempted without a usable
// server configuration.
var ErrNotConfigured = errors.New("mailx: smtp not configured")

// Config carries the SMTP server settings. UseTLS (STARTTLS) and UseSSL
// (implicit TLS) are mutually exclusive; UseSSL wins if both are set.
type Config struct {
	Host     string
	Port     int // 0 selects a default from the TLS mode
	Username string
	Password string
	UseTLS   bool
	UseSSL   bool
}

// Ready reports whether the configuration is complete enough to send.
func (c Config) Ready() bool {
	return c.Host != ""
}

// Addr returns host:port, applying the conventional default port for the
// configured TLS mode when none is set.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		switch {
		case c.UseSSL:
			port = 465
		case c.UseTLS:
			port = 587
		default:
			port = 25
		}
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", port))
}

// Message is a single plain-text mail.
type Message struct {
	FromName  string
	FromEmail string
	To        string
	Subject   string
	Body      string
}

// Mailer sends a message using the supplied server configuration. The
// configuration is passed per call because it lives in the database and can
// change at runtime.
type Mailer interface {
	Send(ctx context.Context, cfg Config, msg Message) error
}

// SMTPMailer is the production Mailer. The zero value is usable.
type SMTPMailer struct {
	// DialTimeout bounds connection establishment. Defaults to 10s.
	DialTimeout time.Duration
}

func (m *SMTPMailer) Send(ctx context.Context, cfg Config, msg Message) error {
	if !cfg.Ready() {
		return ErrNotConfigured
	}

	timeout := m.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("mailx: dial %s: %w", cfg.Addr(), err)
	}

	if cfg.UseSSL {
		conn = tls.Client(conn, &tls.Config{ServerName: cfg.Host})
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mailx: smtp handshake: %w", err)
	}
	defer func() { _ = client.Quit() }()

	if cfg.UseTLS && !cfg.UseSSL {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("mailx: starttls: %w", err)
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("mailx: auth: %w", err)
		}
	}

	if err := client.Mail(msg.FromEmail); err != nil {
		return fmt.Errorf("mailx: mail from: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("mailx: rcpt to: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("mailx: data: %w", err)
	}
	if _, err := wc.Write([]byte(encodeMessage(msg))); err != nil {
		_ = wc.Close()
		return fmt.Errorf("mailx: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("mailx: close body: %w", err)
	}

	return nil
}

func encodeMessage(msg Message) string {
	from := mail.Address{Name: msg.FromName, Address: msg.FromEmail}
	to := mail.Address{Address: msg.To}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from.String())
	fmt.Fprintf(&b, "To: %s\r\n", to.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return b.String()
}
