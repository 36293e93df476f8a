// Package user はユーザーの検索・登録と外部アカウントの紐付けを提供する。
// usersテーブルへの書き込みはこのパッケージを経由する。
package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/repository"
	"github.com/hitoshi/marquee/internal/security"
)

// Resolver はメールアドレスやGoogleアカウントからユーザーを特定する。
type Resolver struct {
	users     repository.UserRepository
	sanitizer security.TextSanitizer
}

// NewResolver はResolverを生成する。
func NewResolver(users repository.UserRepository, sanitizer security.TextSanitizer) *Resolver {
	return &Resolver{users: users, sanitizer: sanitizer}
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *Resolver) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.users.FindByEmail(ctx, email)
}

// FindByExternalSubject はGoogleのsubjectでユーザーを検索する。見つからない場合はnilを返す。
func (r *Resolver) FindByExternalSubject(ctx context.Context, subject string) (*model.User, error) {
	return r.users.FindByGoogleSub(ctx, subject)
}

// FindByID はIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *Resolver) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.users.FindByID(ctx, id)
}

// UpsertFromSignup は同じメールアドレスのユーザーがいればプロフィールを更新し、
// いなければ作成して、ユーザーIDを返す。
func (r *Resolver) UpsertFromSignup(ctx context.Context, p model.Profile) (string, error) {
	return r.users.Upsert(ctx, r.userFromProfile(p))
}

// CreateFromSignup は新規ユーザーを作成してIDを返す。
// メールアドレスが登録済みの場合は USER_EXISTS エラーを返す。
func (r *Resolver) CreateFromSignup(ctx context.Context, p model.Profile) (string, error) {
	u := r.userFromProfile(p)
	if err := r.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) || errors.Is(err, repository.ErrGoogleSubTaken) {
			return "", model.NewUserExistsError()
		}
		return "", err
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", u.ID),
		slog.Bool("google_linked", u.HasExternalIdentity()),
	)
	return u.ID, nil
}

// LinkExternalIdentity はメールアドレスが一致するユーザーにGoogleアカウントを紐付ける。
// 既に紐付けがあるユーザーは変更しない。
func (r *Resolver) LinkExternalIdentity(ctx context.Context, email, subject, externalEmail string, verified bool) error {
	linked, err := r.users.LinkGoogleIdentity(ctx, email, subject, externalEmail, verified)
	if err != nil {
		return err
	}
	if linked {
		slog.Info("Googleアカウントを紐付けました", slog.String("google_sub", subject))
	}
	return nil
}

// ResolveExternal は検証済みのGoogleアカウントに対応するユーザーを返す。
// subject → メールアドレス（確認済みの場合のみ紐付け）→ 新規作成の順に解決する。
// 未確認のメールアドレスが既存ユーザーと一致した場合は INVALID_ID_TOKEN を返す。
func (r *Resolver) ResolveExternal(ctx context.Context, ext model.ExternalIdentity) (*model.User, error) {
	u, err := r.FindByExternalSubject(ctx, ext.Subject)
	if err != nil {
		return nil, err
	}
	if u != nil {
		return u, nil
	}

	if ext.Email == "" {
		// usersのemailは必須のため、メールアドレスを含まないトークンではユーザーを作れない
		return nil, model.NewInvalidIDTokenError()
	}

	if ext.EmailVerified {
		u, err := r.linkByEmail(ctx, ext)
		if err != nil || u != nil {
			return u, err
		}
	}

	verified := ext.EmailVerified
	created := &model.User{
		Email:               ext.Email,
		FirstName:           r.sanitizer.Clean(ext.GivenName),
		LastName:            r.sanitizer.Clean(ext.FamilyName),
		GoogleSub:           ext.Subject,
		GoogleEmail:         ext.Email,
		GoogleEmailVerified: &verified,
	}
	err = r.users.Create(ctx, created)
	if errors.Is(err, repository.ErrGoogleSubTaken) {
		u, err := r.FindByExternalSubject(ctx, ext.Subject)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, model.NewUserExistsError()
		}
		return u, nil
	}
	if errors.Is(err, repository.ErrEmailTaken) {
		if !ext.EmailVerified {
			// 未確認のメールアドレスでは既存アカウントに紐付けない
			return nil, model.NewInvalidIDTokenError()
		}
		// 同時ログインで先に作成された行に紐付ける
		u, err := r.linkByEmail(ctx, ext)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, model.NewUserExistsError()
		}
		return u, nil
	}
	if err != nil {
		return nil, err
	}

	slog.Info("Googleアカウントからユーザーを作成しました",
		slog.String("user_id", created.ID),
		slog.String("google_sub", ext.Subject),
	)
	return created, nil
}

// linkByEmail はメールアドレスが一致するユーザーを探し、未紐付けならGoogleアカウントを紐付ける。
func (r *Resolver) linkByEmail(ctx context.Context, ext model.ExternalIdentity) (*model.User, error) {
	u, err := r.users.FindByEmail(ctx, ext.Email)
	if err != nil || u == nil {
		return nil, err
	}
	if u.HasExternalIdentity() {
		return u, nil
	}

	if err := r.LinkExternalIdentity(ctx, u.Email, ext.Subject, ext.Email, ext.EmailVerified); err != nil {
		return nil, err
	}
	verified := ext.EmailVerified
	u.GoogleSub = ext.Subject
	u.GoogleEmail = ext.Email
	u.GoogleEmailVerified = &verified
	return u, nil
}

func (r *Resolver) userFromProfile(p model.Profile) *model.User {
	return &model.User{
		Email:               p.Email,
		FirstName:           r.sanitizer.Clean(p.FirstName),
		LastName:            r.sanitizer.Clean(p.LastName),
		Phone:               r.sanitizer.Clean(p.Phone),
		Birthday:            p.Birthday,
		TikTok:              p.TikTok,
		Instagram:           p.Instagram,
		GoogleSub:           p.GoogleSub,
		GoogleEmail:         p.GoogleEmail,
		GoogleEmailVerified: p.GoogleEmailVerified,
	}
}
