// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/token"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// claimsContextKey はリクエストコンテキストにセッションのクレームを格納するためのキー。
var claimsContextKey = contextKey("session_claims")

// SessionVerifier はセッショントークンの検証に必要なインターフェース。
type SessionVerifier interface {
	VerifySession(ctx context.Context, raw string) (*token.Claims, error)
}

// NewSessionMiddleware はCookieのセッショントークンを検証し、
// クレームをリクエストコンテキストに注入するミドルウェアを返す。
// 未認証リクエストには401、ストア障害には500を返す。
func NewSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := verifier.VerifySession(r.Context(), sessionToken(r))
			if err != nil {
				WriteError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

// NewOptionalSessionMiddleware はセッションがあればクレームを注入し、なければそのまま通すミドルウェアを返す。
// 検証に失敗してもリクエストは拒否しない。
func NewOptionalSessionMiddleware(verifier SessionVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := sessionToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.VerifySession(r.Context(), raw)
			if err != nil {
				var apiErr *model.APIError
				if !errors.As(err, &apiErr) {
					slog.Warn("セッションの検証に失敗しました", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(r.Context(), claims)))
		})
	}
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// ClaimsFromContext はリクエストコンテキストからセッションのクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*token.Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok || claims.UserID == "" {
		return "", model.NewUnauthorizedError()
	}
	return claims.UserID, nil
}

// ContextWithClaims はコンテキストにクレームを注入し、アクセスログにユーザーIDを記録する。
// テストやミドルウェア以外のコンテキスト生成でも使用する。
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	setLogUserID(ctx, claims.UserID)
	return context.WithValue(ctx, claimsContextKey, claims)
}
