package sqlite

import (
	"context"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

type csrfTokensRepo struct {
	db dbtx
}

func (r *csrfTokensRepo) GetBySessionKey(ctx context.Context, sessionKey string) (domain.CSRFToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT session_key, token, created_at FROM csrf_tokens WHERE session_key = ?`,
		sessionKey,
	)

	var t domain.CSRFToken
	if err := row.Scan(&t.SessionKey, &t.Token, &t.CreatedAt); err != nil {
		return domain.CSRFToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *csrfTokensRepo) CreateToken(ctx context.Context, t domain.CSRFToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO csrf_tokens (session_key, token, created_at) VALUES (?, ?, ?)`,
		t.SessionKey, t.Token, utc(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *csrfTokensRepo) RotateToken(ctx context.Context, sessionKey, token string, createdAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE csrf_tokens SET token = ?, created_at = ? WHERE session_key = ?`,
		token, utc(createdAt), sessionKey,
	)
	return err
}

func (r *csrfTokensRepo) DeleteStaleTokens(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM csrf_tokens WHERE created_at <= ?`,
		utc(cutoff),
	)
	return err
}
