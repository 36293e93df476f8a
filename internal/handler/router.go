package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/marquee/internal/middleware"
	"github.com/hitoshi/marquee/internal/model"
	"github.com/hitoshi/marquee/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	SessionVerifier    middleware.SessionVerifier
	CORSAllowedOrigins []string
	HTTPMetrics        middleware.HTTPMetrics
	HSTS               bool

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig
	URLGuard    security.URLGuard
	Sanitizer   security.TextSanitizer

	// イベント
	EventService EventServiceInterface

	// 運用
	DB             Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Metrics → Logging → CORS → (Session) → Handler
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	if deps.HTTPMetrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.HTTPMetrics))
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, model.NewNotFoundError())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, model.NewMethodNotAllowedError())
	})

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, deps.URLGuard, deps.Sanitizer)
	eventHandler := NewEventHandler(deps.EventService)
	healthHandler := NewHealthHandler(deps.DB)

	r.Get("/healthz", healthHandler.Healthz)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Post("/login/google", authHandler.LoginGoogle)
		r.Get("/events", eventHandler.ListUpcoming)

		r.With(middleware.NewOptionalSessionMiddleware(deps.SessionVerifier)).
			Post("/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionVerifier))
			r.Get("/me", authHandler.Me)
		})
	})

	return r
}
