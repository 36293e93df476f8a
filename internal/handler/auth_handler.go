// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/marquee/internal/auth"
	"github.com/hitoshi/marquee/internal/middleware"
	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/security"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, p model.Profile, googleIDToken string, meta auth.RequestMeta) (*auth.SignupResult, error)
	LoginWithGoogle(ctx context.Context, idToken string, meta auth.RequestMeta) (*auth.LoginResult, error)
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain string
	CookieSecure bool
}

// AuthHandler はサインアップ、ログイン、ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service   AuthServiceInterface
	config    AuthHandlerConfig
	validator *requestValidator
	sanitizer security.TextSanitizer
}

// NewAuthHandler はAuthHandlerを生成する。
// sanitizerがnilの場合はbluemondayのStrictPolicyを使う。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, guard security.URLGuard, sanitizer security.TextSanitizer) *AuthHandler {
	if sanitizer == nil {
		sanitizer = security.NewTextSanitizer()
	}
	return &AuthHandler{
		service:   service,
		config:    config,
		validator: newRequestValidator(guard),
		sanitizer: sanitizer,
	}
}

// signupRequest はサインアップのリクエストボディ。
type signupRequest struct {
	FirstName     string `json:"firstName" validate:"required,max=100"`
	LastName      string `json:"lastName" validate:"required,max=100"`
	Phone         string `json:"phone" validate:"required,min=3,max=100"`
	Email         string `json:"email" validate:"required,max=320,email"`
	Birthday      string `json:"birthday" validate:"required,datetime=2006-01-02"`
	TikTok        string `json:"tiktok" validate:"omitempty,max=2048,url,publicurl"`
	Instagram     string `json:"instagram" validate:"omitempty,max=2048,url,publicurl"`
	GoogleIDToken string `json:"googleIdToken" validate:"omitempty,max=8192"`
}

// normalize は検証前に入力を保存される形にそろえる。
// 氏名と電話番号はマークアップを除去してから長さを検証する。
func (req *signupRequest) normalize(sanitizer security.TextSanitizer) {
	req.FirstName = sanitizer.Clean(req.FirstName)
	req.LastName = sanitizer.Clean(req.LastName)
	req.Phone = sanitizer.Clean(req.Phone)
	req.Email = strings.TrimSpace(req.Email)
	req.Birthday = strings.TrimSpace(req.Birthday)
	req.TikTok = strings.TrimSpace(req.TikTok)
	req.Instagram = strings.TrimSpace(req.Instagram)
}

type signupResponse struct {
	OK     bool   `json:"ok"`
	UserID string `json:"userId"`
}

type googleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required,max=8192"`
}

// userResponse はユーザー情報のレスポンス表現。未設定の任意項目はnullになる。
type userResponse struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Phone     *string `json:"phone"`
	Birthday  *string `json:"birthday"`
	TikTok    *string `json:"tiktok"`
	Instagram *string `json:"instagram"`
}

type userEnvelope struct {
	OK   bool         `json:"ok"`
	User userResponse `json:"user"`
}

// Signup はユーザーを登録してセッションCookieを発行する。
// POST /api/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.normalize(h.sanitizer)
	if err := h.validator.Struct(&req); err != nil {
		writeError(w, r, err)
		return
	}

	// datetimeタグで検証済み
	birthday, _ := time.Parse(dateLayout, req.Birthday)
	profile := model.Profile{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Birthday:  &birthday,
		TikTok:    req.TikTok,
		Instagram: req.Instagram,
	}

	result, err := h.service.Signup(r.Context(), profile, req.GoogleIDToken, requestMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, signupResponse{OK: true, UserID: result.UserID})
}

// LoginGoogle はGoogleのIDトークンでログインし、セッションCookieを発行する。
// POST /api/login/google
func (h *AuthHandler) LoginGoogle(w http.ResponseWriter, r *http.Request) {
	var req googleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.service.LoginWithGoogle(r.Context(), req.IDToken, requestMeta(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusCreated, userEnvelope{OK: true, User: toUserResponse(result.User)})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.service.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{OK: true, User: toUserResponse(u)})
}

// Logout はセッションを失効させ、Cookieを削除する。
// セッションがない場合も成功として扱う。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		if err := h.service.Logout(r.Context(), claims.SessionID); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, s *auth.IssuedSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    s.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(s.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: optional(u.FirstName),
		LastName:  optional(u.LastName),
		Phone:     optional(u.Phone),
		TikTok:    optional(u.TikTok),
		Instagram: optional(u.Instagram),
	}
	if u.Birthday != nil {
		resp.Birthday = optional(u.Birthday.Format(dateLayout))
	}
	return resp
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
