package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/marquee/internal/model"
)

const uniqueViolation = "23505"

const userColumns = `id, email, first_name, last_name, phone, birthday, tiktok, instagram,
	google_sub, google_email, google_email_verified, created_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db, now: time.Now}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// UUID形式でないIDはどの行にも一致しない
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row, "find user by id")
}

// FindByEmail はメールアドレスでユーザーを検索する。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY created_at DESC LIMIT 1`,
		email,
	)
	return scanUser(row, "find user by email")
}

// FindByGoogleSub はGoogleのsubjectでユーザーを検索する。
func (r *PostgresUserRepo) FindByGoogleSub(ctx context.Context, sub string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_sub = $1`,
		sub,
	)
	return scanUser(row, "find user by google sub")
}

// Create はユーザーを作成する。IDと作成日時が未設定の場合はここで採番する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	r.fillDefaults(user)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		userArgs(user)...,
	)
	if isUniqueViolation(err, "users_email_key") {
		return ErrEmailTaken
	}
	if isUniqueViolation(err, "users_google_sub_key") {
		return ErrGoogleSubTaken
	}
	if err != nil {
		return &model.PersistenceError{Op: "create user", Err: err}
	}
	return nil
}

// Upsert はメールアドレスをキーにユーザーを作成または更新し、そのIDを返す。
// 1文で実行するため、同一メールの同時登録でも行は1つになる。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) (string, error) {
	r.fillDefaults(user)

	var id string
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (email) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			birthday = EXCLUDED.birthday,
			tiktok = EXCLUDED.tiktok,
			instagram = EXCLUDED.instagram,
			google_sub = COALESCE(users.google_sub, EXCLUDED.google_sub),
			google_email = COALESCE(users.google_email, EXCLUDED.google_email),
			google_email_verified = COALESCE(users.google_email_verified, EXCLUDED.google_email_verified)
		 RETURNING id`,
		userArgs(user)...,
	).Scan(&id)
	if err != nil {
		return "", &model.PersistenceError{Op: "upsert user", Err: err}
	}
	return id, nil
}

// LinkGoogleIdentity は未紐付けのユーザーにGoogleアカウントを紐付ける。
// 既に別のsubjectが紐付いている行は更新しない。
func (r *PostgresUserRepo) LinkGoogleIdentity(ctx context.Context, email, sub, googleEmail string, verified bool) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_sub = $2, google_email = $3, google_email_verified = $4
		 WHERE email = $1 AND google_sub IS NULL`,
		email, sub, nullString(googleEmail), verified,
	)
	if isUniqueViolation(err, "users_google_sub_key") {
		// 同じsubjectが別ユーザーに紐付いている
		return false, nil
	}
	if err != nil {
		return false, &model.PersistenceError{Op: "link google identity", Err: err}
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, &model.PersistenceError{Op: "link google identity", Err: err}
	}
	return rowsAffected > 0, nil
}

func (r *PostgresUserRepo) fillDefaults(user *model.User) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.now().UTC()
	}
}

func userArgs(u *model.User) []any {
	return []any{
		u.ID,
		u.Email,
		nullString(u.FirstName),
		nullString(u.LastName),
		nullString(u.Phone),
		nullTime(u.Birthday),
		nullString(u.TikTok),
		nullString(u.Instagram),
		nullString(u.GoogleSub),
		nullString(u.GoogleEmail),
		nullBool(u.GoogleEmailVerified),
		u.CreatedAt,
	}
}

func scanUser(row *sql.Row, op string) (*model.User, error) {
	var (
		u                          model.User
		firstName, lastName, phone sql.NullString
		tiktok, instagram          sql.NullString
		googleSub, googleEmail     sql.NullString
		birthday                   sql.NullTime
		googleEmailVerified        sql.NullBool
	)
	err := row.Scan(
		&u.ID, &u.Email, &firstName, &lastName, &phone, &birthday, &tiktok, &instagram,
		&googleSub, &googleEmail, &googleEmailVerified, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &model.PersistenceError{Op: op, Err: err}
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Phone = phone.String
	u.TikTok = tiktok.String
	u.Instagram = instagram.String
	u.GoogleSub = googleSub.String
	u.GoogleEmail = googleEmail.String
	if birthday.Valid {
		b := birthday.Time
		u.Birthday = &b
	}
	if googleEmailVerified.Valid {
		v := googleEmailVerified.Bool
		u.GoogleEmailVerified = &v
	}
	return &u, nil
}

// isUniqueViolation は指定制約の一意性違反かを判定する。constraintが空なら制約名を問わない。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == uniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
