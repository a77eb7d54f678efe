package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/hexphish/hexphish/internal/hexphish/domain"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, password_hash, is_admin, is_active,
	must_change_password, mfa_method, totp_secret, mfa_enabled, session_token,
	created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u          domain.User
		method     string
		totpSecret sql.NullString
		bindingTok sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsActive,
		&u.MustChangePassword, &method, &totpSecret, &u.MFAEnabled, &bindingTok,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	u.MFAMethod = domain.MFAMethod(method)
	u.TOTPSecret = mapNullString(totpSecret)
	u.SessionToken = mapNullString(bindingTok)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByIdentifier(ctx context.Context, identifier string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE username = ? COLLATE NOCASE OR email = ? COLLATE NOCASE`,
		identifier, identifier)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := utc(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, is_admin, is_active,
			must_change_password, mfa_method, totp_secret, mfa_enabled, session_token,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsAdmin, u.IsActive,
		u.MustChangePassword, string(u.MFAMethod), mapOptionalString(u.TOTPSecret),
		u.MFAEnabled, mapOptionalString(u.SessionToken), now, now,
	)
	return mapConstraint(err)
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var (
			u          domain.User
			method     string
			totpSecret sql.NullString
			bindingTok sql.NullString
		)
		err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin, &u.IsActive,
			&u.MustChangePassword, &method, &totpSecret, &u.MFAEnabled, &bindingTok,
			&u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		u.MFAMethod = domain.MFAMethod(method)
		u.TOTPSecret = mapNullString(totpSecret)
		u.SessionToken = mapNullString(bindingTok)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string, mustChange bool) error {
	return r.exec(ctx,
		`UPDATE users SET password_hash = ?, must_change_password = ?, updated_at = ? WHERE id = ?`,
		newHash, mustChange, utc(time.Now()), userID)
}

func (r *usersRepo) UpdateSessionToken(ctx context.Context, userID, token string) error {
	return r.exec(ctx,
		`UPDATE users SET session_token = ?, updated_at = ? WHERE id = ?`,
		token, utc(time.Now()), userID)
}

func (r *usersRepo) UpdateMFAMethod(ctx context.Context, userID string, method domain.MFAMethod, secret *string) error {
	return r.exec(ctx,
		`UPDATE users SET mfa_method = ?, totp_secret = ?, mfa_enabled = 0, updated_at = ? WHERE id = ?`,
		string(method), mapOptionalString(secret), utc(time.Now()), userID)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users SET mfa_enabled = 1, updated_at = ? WHERE id = ?`,
		utc(time.Now()), userID)
}

func (r *usersRepo) ClearMFA(ctx context.Context, userID string) error {
	return r.exec(ctx,
		`UPDATE users SET mfa_method = 'none', totp_secret = NULL, mfa_enabled = 0, updated_at = ? WHERE id = ?`,
		utc(time.Now()), userID)
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return r.exec(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, utc(time.Now()), userID)
}

func (r *usersRepo) SetMustChangePassword(ctx context.Context, userID string, mustChange bool) error {
	return r.exec(ctx,
		`UPDATE users SET must_change_password = ?, updated_at = ? WHERE id = ?`,
		mustChange, utc(time.Now()), userID)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = ?`, userID)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

func (r *usersRepo) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
