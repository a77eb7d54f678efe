package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

type mfaChallengesRepo struct {
	db dbtx
}

func (r *mfaChallengesRepo) CreateChallenge(ctx context.Context, c domain.MFAChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (id, user_id, code_hash, created_at, expires_at, used_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.CodeHash, utc(c.CreatedAt), utc(c.ExpiresAt), mapOptionalTime(c.UsedAt),
	)
	return err
}

// GetActiveChallenge selects the newest active row so that a creation race
// between two concurrent requests leaves the later insert authoritative.
func (r *mfaChallengesRepo) GetActiveChallenge(ctx context.Context, userID string, now time.Time) (domain.MFAChallenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, code_hash, created_at, expires_at, used_at
		 FROM mfa_challenges
		 WHERE user_id = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		userID, utc(now),
	)

	var (
		c      domain.MFAChallenge
		usedAt sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt, &usedAt); err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}
	c.UsedAt = mapNullTime(usedAt)
	return c, nil
}

func (r *mfaChallengesRepo) MarkChallengeUsed(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE mfa_challenges SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		utc(usedAt), id,
	)
	return err
}

func (r *mfaChallengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM mfa_challenges WHERE expires_at <= ? OR used_at IS NOT NULL`,
		utc(now),
	)
	return err
}
