package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/token"
)

// mockSessionVerifier はSessionVerifierのモック実装。
type mockSessionVerifier struct {
	verifyFn func(ctx context.Context, raw string) (*token.Claims, error)
}

func (m *mockSessionVerifier) VerifySession(ctx context.Context, raw string) (*token.Claims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, raw)
	}
	if raw == "" {
		return nil, model.NewUnauthorizedError()
	}
	return &token.Claims{UserID: "user-" + raw, SessionID: "sid-" + raw}, nil
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestSessionMiddleware_ValidCookie_InjectsClaims(t *testing.T) {
	var captured *token.Claims
	handler := NewSessionMiddleware(&mockSessionVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "abc"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.UserID != "user-abc" || captured.SessionID != "sid-abc" {
		t.Errorf("unexpected claims: %+v", captured)
	}
}

func TestSessionMiddleware_NoCookie_Returns401(t *testing.T) {
	handler := NewSessionMiddleware(&mockSessionVerifier{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := decodeErrorBody(t, w)
	if body.OK || body.Code != model.ErrCodeUnauthorized {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestSessionMiddleware_RevokedSession_Returns401(t *testing.T) {
	verifier := &mockSessionVerifier{
		verifyFn: func(ctx context.Context, raw string) (*token.Claims, error) {
			return nil, model.NewUnauthorizedError()
		},
	}
	handler := NewSessionMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "revoked"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_StoreFailure_Returns500(t *testing.T) {
	verifier := &mockSessionVerifier{
		verifyFn: func(ctx context.Context, raw string) (*token.Claims, error) {
			return nil, &model.PersistenceError{Op: "check session", Err: errors.New("connection refused")}
		},
	}
	handler := NewSessionMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "abc"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodePersistence {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodePersistence)
	}
}

func TestOptionalSessionMiddleware(t *testing.T) {
	verifier := &mockSessionVerifier{
		verifyFn: func(ctx context.Context, raw string) (*token.Claims, error) {
			switch raw {
			case "good":
				return &token.Claims{UserID: "user-1", SessionID: "sid-1"}, nil
			case "broken":
				return nil, &model.PersistenceError{Op: "check session", Err: errors.New("down")}
			default:
				return nil, model.NewUnauthorizedError()
			}
		},
	}

	tests := []struct {
		name       string
		cookie     string
		wantClaims bool
	}{
		{name: "Cookieなし", cookie: "", wantClaims: false},
		{name: "有効なセッション", cookie: "good", wantClaims: true},
		{name: "無効なセッション", cookie: "bad", wantClaims: false},
		{name: "ストア障害", cookie: "broken", wantClaims: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			var hasClaims bool
			handler := NewOptionalSessionMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				_, hasClaims = ClaimsFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if !called {
				t.Fatal("handler should always be called")
			}
			if hasClaims != tt.wantClaims {
				t.Errorf("hasClaims = %v, want %v", hasClaims, tt.wantClaims)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithClaims(context.Background(), &token.Claims{UserID: "user-9"})
	userID, err := UserIDFromContext(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-9" {
		t.Errorf("userID = %q, want %q", userID, "user-9")
	}
}
