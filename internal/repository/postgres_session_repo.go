package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hitoshi/marquee/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// 有効性の判定はDBの now() で行い、トークン側の有効期限には依存しない。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (jti, user_id, user_agent, ip, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, nullString(session.UserAgent), nullString(session.IP),
		session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return &model.PersistenceError{Op: "create session", Err: err}
	}
	return nil
}

// IsActive はセッションが存在し、期限内であるかを返す。
func (r *PostgresSessionRepo) IsActive(ctx context.Context, id string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE jti = $1 AND expires_at > now()`,
		id,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &model.PersistenceError{Op: "check session", Err: err}
	}
	return true, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE jti = $1`,
		id,
	)
	if err != nil {
		return &model.PersistenceError{Op: "delete session", Err: err}
	}
	return nil
}

// DeleteByUserID は指定ユーザーの全セッションを削除する。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return &model.PersistenceError{Op: "delete user sessions", Err: err}
	}
	return nil
}

// DeleteExpired は期限切れのセッションを削除する。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, &model.PersistenceError{Op: "delete expired sessions", Err: err}
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, &model.PersistenceError{Op: "delete expired sessions", Err: err}
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
