// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
// 実装はストア障害を *model.PersistenceError で返す。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/marquee/internal/model"
)

// ErrEmailTaken は同じメールアドレスのユーザーが既に存在する場合に返される。
var ErrEmailTaken = errors.New("email already registered")

// ErrGoogleSubTaken は同じGoogleアカウントが別のユーザーに紐付いている場合に返される。
var ErrGoogleSubTaken = errors.New("google account already linked")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。
	// 重複行がある場合は最も新しく作成された行を返す。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByGoogleSub はGoogleのsubjectでユーザーを検索する。見つからない場合はnilを返す。
	FindByGoogleSub(ctx context.Context, sub string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが既に登録済みの場合は ErrEmailTaken、
	// Googleアカウントが別ユーザーに紐付いている場合は ErrGoogleSubTaken を返す。
	Create(ctx context.Context, user *model.User) error

	// Upsert はメールアドレスをキーにユーザーを作成または更新し、そのIDを返す。
	// 既存行のGoogle紐付けは上書きしない。
	Upsert(ctx context.Context, user *model.User) (string, error)

	// LinkGoogleIdentity は未紐付けのユーザーにGoogleアカウントを紐付ける。
	// 更新した行があればtrueを返す。
	LinkGoogleIdentity(ctx context.Context, email, sub, googleEmail string, verified bool) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error

	// IsActive はセッションが存在し、かつストアの時刻で期限内であるかを返す。
	IsActive(ctx context.Context, id string) (bool, error)

	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error

	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error

	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// EventRepository はイベントデータの読み取りインターフェース。
type EventRepository interface {
	// ListPublished は公開済みイベントを開催日の昇順で返す。
	// fromが指定された場合はその日以降のイベントに絞り込む。
	ListPublished(ctx context.Context, from *time.Time, limit int) ([]model.Event, error)
}
