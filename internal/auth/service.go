package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/marquee/internal/model"
)

// IDTokenVerifier は外部IdPのIDトークンを検証する。
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*model.ExternalIdentity, error)
}

// UserResolver はユーザーの検索と登録を行う。
type UserResolver interface {
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	CreateFromSignup(ctx context.Context, p model.Profile) (string, error)
	ResolveExternal(ctx context.Context, ext model.ExternalIdentity) (*model.User, error)
}

// RequestMeta はセッションに記録するリクエスト元の情報。
type RequestMeta struct {
	UserAgent string
	IP        string
}

// SignupResult はサインアップの結果。
type SignupResult struct {
	UserID  string
	Session *IssuedSession
}

// LoginResult はGoogleログインの結果。
type LoginResult struct {
	User    *model.User
	Session *IssuedSession
}

// Service はサインアップ、Googleログイン、ログアウトのフローを提供する。
type Service struct {
	sessions *SessionManager
	users    UserResolver
	google   IDTokenVerifier
}

// NewService はServiceを生成する。
func NewService(sessions *SessionManager, users UserResolver, google IDTokenVerifier) *Service {
	return &Service{
		sessions: sessions,
		users:    users,
		google:   google,
	}
}

// Signup はユーザーを登録してセッションを開始する。
// 登録済みのメールアドレスはログインへ誘導するためUSER_EXISTSで拒否し、行もセッションも作らない。
// googleIDTokenが指定された場合は検証してGoogleアカウントを紐付ける。
func (s *Service) Signup(ctx context.Context, p model.Profile, googleIDToken string, meta RequestMeta) (*SignupResult, error) {
	existing, err := s.users.FindByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, model.NewUserExistsError()
	}

	if googleIDToken != "" {
		ext, err := s.google.Verify(ctx, googleIDToken)
		if err != nil {
			return nil, err
		}
		verified := ext.EmailVerified
		p.GoogleSub = ext.Subject
		p.GoogleEmail = ext.Email
		p.GoogleEmailVerified = &verified
	}

	userID, err := s.users.CreateFromSignup(ctx, p)
	if err != nil {
		return nil, err
	}

	issued, err := s.sessions.StartSession(ctx, SessionParams{
		UserID:    userID,
		Email:     p.Email,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	})
	if err != nil {
		return nil, err
	}

	return &SignupResult{UserID: userID, Session: issued}, nil
}

// LoginWithGoogle はIDトークンを検証し、対応するユーザーでセッションを開始する。
// ユーザーが存在しなければGoogleのプロフィールから作成する。
func (s *Service) LoginWithGoogle(ctx context.Context, idToken string, meta RequestMeta) (*LoginResult, error) {
	ext, err := s.google.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	u, err := s.users.ResolveExternal(ctx, *ext)
	if err != nil {
		return nil, err
	}

	issued, err := s.sessions.StartSession(ctx, SessionParams{
		UserID:    u.ID,
		Email:     u.Email,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Googleでログインしました", slog.String("user_id", u.ID))
	return &LoginResult{User: u, Session: issued}, nil
}

// CurrentUser はセッションのユーザーを返す。ユーザーが削除されていればUSER_NOT_FOUNDを返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// Logout はセッションを失効させる。sessionIDが空の場合は何もしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.EndSession(ctx, sessionID)
}

// LogoutEverywhere はユーザーの全セッションを失効させる。
func (s *Service) LogoutEverywhere(ctx context.Context, userID string) error {
	return s.sessions.EndAllSessionsForUser(ctx, userID)
}
