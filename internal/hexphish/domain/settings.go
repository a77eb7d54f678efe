package domain

import "time"

// MailSettings is the single persisted outbound-SMTP configuration used for
// MFA codes, password reset links and account emails. UseTLS (STARTTLS) and
// UseSSL (implicit TLS) are mutually exclusive.
type MailSettings struct {
	Host      string
	Port      int
	Username  string
	Password  string
	UseTLS    bool
	UseSSL    bool
	FromName  string
	FromEmail string
	BaseURL   string // external base URL used to build links in emails
	UpdatedAt time.Time
}

// Ready reports whether the settings are complete enough to send mail.
func (s MailSettings) Ready() bool {
	return s.Host != "" && (s.FromEmail != "" || s.Username != "")
}

// Sender returns the from name/address pair, applying defaults the way the
// console has always done.
func (s MailSettings) Sender() (name, email string) {
	name = s.FromName
	if name == "" {
		name = "HexPhish"
	}
	email = s.FromEmail
	if email == "" {
		email = s.Username
	}
	if email == "" {
		email = "no-reply@localhost"
	}
	return name, email
}
