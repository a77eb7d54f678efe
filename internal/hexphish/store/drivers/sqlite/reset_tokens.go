package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

type resetTokensRepo struct {
	db dbtx
}

func (r *resetTokensRepo) CreateResetToken(ctx context.Context, t domain.PasswordResetToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (id, user_id, token_hash, created_at, expires_at, used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, utc(t.CreatedAt), utc(t.ExpiresAt), mapOptionalTime(t.UsedAt),
	)
	return err
}

func (r *resetTokensRepo) GetActiveResetTokenByHash(ctx context.Context, hash string, now time.Time) (domain.PasswordResetToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, created_at, expires_at, used_at
		 FROM password_reset_tokens
		 WHERE token_hash = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		hash, utc(now),
	)

	var (
		t      domain.PasswordResetToken
		usedAt sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt, &usedAt); err != nil {
		return domain.PasswordResetToken{}, mapNotFound(err)
	}
	t.UsedAt = mapNullTime(usedAt)
	return t, nil
}

func (r *resetTokensRepo) SupersedeUserResetTokens(ctx context.Context, userID string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = ? WHERE user_id = ? AND used_at IS NULL`,
		utc(usedAt), userID,
	)
	return err
}

func (r *resetTokensRepo) MarkResetTokenUsed(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE password_reset_tokens SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		utc(usedAt), id,
	)
	return err
}

func (r *resetTokensRepo) DeleteExpiredResetTokens(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM password_reset_tokens WHERE expires_at <= ? OR used_at IS NOT NULL`,
		utc(now),
	)
	return err
}
