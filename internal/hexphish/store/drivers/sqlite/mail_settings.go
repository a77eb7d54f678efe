package sqlite

import (
	"context"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

type mailSettingsRepo struct {
	db dbtx
}

func (r *mailSettingsRepo) GetMailSettings(ctx context.Context) (domain.MailSettings, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT host, port, username, password, use_tls, use_ssl,
			from_name, from_email, base_url, updated_at
		 FROM mail_settings WHERE id = 1`,
	)

	var s domain.MailSettings
	err := row.Scan(
		&s.Host, &s.Port, &s.Username, &s.Password, &s.UseTLS, &s.UseSSL,
		&s.FromName, &s.FromEmail, &s.BaseURL, &s.UpdatedAt,
	)
	if err != nil {
		return domain.MailSettings{}, mapNotFound(err)
	}
	return s, nil
}

func (r *mailSettingsRepo) UpsertMailSettings(ctx context.Context, s domain.MailSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mail_settings (id, host, port, username, password, use_tls, use_ssl,
			from_name, from_email, base_url, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password,
			use_tls = excluded.use_tls,
			use_ssl = excluded.use_ssl,
			from_name = excluded.from_name,
			from_email = excluded.from_email,
			base_url = excluded.base_url,
			updated_at = excluded.updated_at`,
		s.Host, s.Port, s.Username, s.Password, s.UseTLS, s.UseSSL,
		s.FromName, s.FromEmail, s.BaseURL, utc(time.Now()),
	)
	return err
}
