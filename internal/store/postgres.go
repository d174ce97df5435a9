package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrWorkNotEmpty is returned when deleting a work that still has segments.
var ErrWorkNotEmpty = errors.New("work still has segments")

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every SQL operation; it runs against either the pool or an
// open transaction.
type queries struct {
	q dbtx
}

type PostgresStore struct {
	db *sql.DB
	queries
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	s := &PostgresStore{db: db}
	s.q = db
	return s
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type PostgresTx struct {
	tx *sql.Tx
	queries
}

func (s *PostgresStore) Begin(ctx context.Context) (*PostgresTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	t := &PostgresTx{tx: tx}
	t.q = tx
	return t, nil
}

func (t *PostgresTx) Commit() error {
	return t.tx.Commit()
}

func (t *PostgresTx) Rollback() error {
	return t.tx.Rollback()
}

// ---- users ----

func (q queries) CreateUser(ctx context.Context, user User) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	// Reputation rows are created lazily, per language, on first read.
	return nil
}

const userColumns = `id, display_name, email, password_hash, is_email_verified, verification_token, verification_expires_at, deactivated_at, created_at, updated_at`

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash,
		&user.IsEmailVerified, &user.VerificationToken, &user.VerificationExpiresAt,
		&user.DeactivatedAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (q queries) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(q.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

func (q queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (q queries) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW() WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("set verification token: %w", err)
	}
	return nil
}

func (q queries) VerifyUserEmail(ctx context.Context, token string) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q queries) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := q.q.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (q queries) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (q queries) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := q.q.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (q queries) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := q.q.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// ---- refresh sessions ----

func (q queries) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (q queries) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := q.q.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (q queries) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.password_hash, u.is_email_verified,
			u.verification_token, u.verification_expires_at, u.deactivated_at, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	return scanUser(q.q.QueryRowContext(ctx, query, tokenHash))
}

func (q queries) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (q queries) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := q.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1 AND expires_at > NOW())
	`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// ---- reputation ----

// GetReputation reads a user's score for one language, creating the default
// baseline row on first read.
func (q queries) GetReputation(ctx context.Context, userID, language string) (Reputation, error) {
	var rep Reputation
	err := q.q.QueryRowContext(ctx, `
		SELECT user_id, language, score, updated_at FROM reputations WHERE user_id=$1 AND language=$2
	`, userID, language).Scan(&rep.UserID, &rep.Language, &rep.Score, &rep.UpdatedAt)
	if err == nil {
		return rep, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Reputation{}, fmt.Errorf("read reputation: %w", err)
	}
	err = q.q.QueryRowContext(ctx, `
		INSERT INTO reputations (user_id, language) VALUES ($1, $2)
		ON CONFLICT (user_id, language) DO UPDATE SET user_id=EXCLUDED.user_id
		RETURNING user_id, language, score, updated_at
	`, userID, language).Scan(&rep.UserID, &rep.Language, &rep.Score, &rep.UpdatedAt)
	if err != nil {
		return Reputation{}, fmt.Errorf("init reputation: %w", err)
	}
	return rep, nil
}

func (q queries) AddReputation(ctx context.Context, userID, language string, delta int64) (int64, error) {
	var score int64
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO reputations (user_id, language, score) VALUES ($1, $2, 1 + $3)
		ON CONFLICT (user_id, language) DO UPDATE SET score = reputations.score + $3, updated_at = NOW()
		RETURNING score
	`, userID, language, delta).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("add reputation: %w", err)
	}
	return score, nil
}

// ListReputations returns every per-language score a user has accumulated.
func (q queries) ListReputations(ctx context.Context, userID string) ([]Reputation, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT user_id, language, score, updated_at FROM reputations WHERE user_id=$1 ORDER BY language
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reputations: %w", err)
	}
	defer rows.Close()

	var reps []Reputation
	for rows.Next() {
		var rep Reputation
		if err := rows.Scan(&rep.UserID, &rep.Language, &rep.Score, &rep.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reputation: %w", err)
		}
		reps = append(reps, rep)
	}
	return reps, rows.Err()
}
