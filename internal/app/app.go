package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/marquee/internal/auth"
	"github.com/hitoshi/marquee/internal/cache"
	"github.com/hitoshi/marquee/internal/config"
	"github.com/hitoshi/marquee/internal/database"
	"github.com/hitoshi/marquee/internal/event"
	"github.com/hitoshi/marquee/internal/handler"
	"github.com/hitoshi/marquee/internal/logger"
	"github.com/hitoshi/marquee/internal/metrics"
	"github.com/hitoshi/marquee/internal/repository"
	"github.com/hitoshi/marquee/internal/security"
	"github.com/hitoshi/marquee/internal/token"
	"github.com/hitoshi/marquee/internal/user"
	"github.com/hitoshi/marquee/internal/worker/cleanup"
)

const (
	shutdownTimeout    = 30 * time.Second
	googleCertsTimeout = 10 * time.Second
	eventsCachePrefix  = "marquee:"
)

var (
	_ auth.UserResolver             = (*user.Resolver)(nil)
	_ handler.AuthServiceInterface  = (*auth.Service)(nil)
	_ handler.EventServiceInterface = (*event.Service)(nil)
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込み、ログレベルを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("env", cfg.Environment),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		direction, err := ParseMigrateDirection(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, direction)
	default:
		return runServe(cfg)
	}
}

// openDatabase はコネクションプールを開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.Database.URL, database.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.Database.URL)),
	)
	return db, nil
}

// openEventsCache はREDIS_URLが設定されていればRedisに接続する。
// 接続できない場合はキャッシュなしで起動を続ける。
func openEventsCache(ctx context.Context, cfg *config.Config) (*redis.Client, cache.Cache) {
	if cfg.RedisURL == "" {
		slog.Info("events cache disabled")
		return nil, nil
	}

	client, err := cache.Open(ctx, cfg.RedisURL)
	if err != nil {
		slog.Warn("events cache unavailable, continuing without cache",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	slog.Info("events cache connected", slog.Duration("ttl", cfg.EventsCacheTTL))
	return client, cache.NewRedisCache(client, eventsCachePrefix, cfg.EventsCacheTTL)
}

// newRegistry はプロセスメトリクスを含むPrometheusレジストリを生成する。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// newAPIHandler はAPIサーバーの全依存関係をワイヤリングしたハンドラーを返す。
// eventCacheはnilでもよい。
func newAPIHandler(cfg *config.Config, db *sql.DB, eventCache cache.Cache, reg *prometheus.Registry) (http.Handler, error) {
	collector := metrics.NewCollector(reg)

	// リポジトリ
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// セキュリティ
	urlGuard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 認証
	codec, err := token.NewCodec(cfg.SessionSecret, cfg.TokenValidityDays)
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	sessions := auth.NewSessionManager(codec, sessionRepo, collector)
	google := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
		ClientID:   cfg.GoogleClientID,
		CertsURL:   cfg.GoogleCertsURL,
		HTTPClient: urlGuard.NewSafeClient(googleCertsTimeout),
	}, collector)
	resolver := user.NewResolver(userRepo, sanitizer)
	authService := auth.NewService(sessions, resolver, google)

	// イベント
	eventService := event.NewService(eventRepo, eventCache, collector)

	return handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		SessionVerifier:    sessions,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		HTTPMetrics:        collector,
		HSTS:               cfg.CookieSecure(),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure(),
		},
		URLGuard:  urlGuard,
		Sanitizer: sanitizer,

		EventService: eventService,

		DB:             db,
		MetricsHandler: metrics.Handler(reg),
	}), nil
}

// newWorkerHandler はワーカーのヘルスチェックとメトリクス公開用のハンドラーを返す。
func newWorkerHandler(db handler.Pinger, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handler.NewHealthHandler(db).Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	return r
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient, eventCache := openEventsCache(ctx, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	router, err := newAPIHandler(cfg, db, eventCache, newRegistry())
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブを実行し、/healthz と /metrics を公開する。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	job := cleanup.NewSessionCleanupJob(repository.NewPostgresSessionRepo(db), collector, slog.Default())
	job.Interval = cfg.SessionCleanupInterval

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go job.Start(ctx)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           newWorkerHandler(db, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return serveUntilSignal(server, "worker")
}

// serveUntilSignal はサーバーを起動し、SIGINT/SIGTERMで停止する。
// Listenに失敗した場合はそのエラーを返す。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("%s listen error: %w", name, err)
	case <-stop:
	}

	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upは未適用のマイグレーションをすべて適用し、downは直近の1件を取り消す。
func runMigrate(cfg *config.Config, direction MigrateDirection) error {
	slog.Info("running database migrations",
		slog.String("direction", string(direction)),
		slog.String("database_url", maskDatabaseURL(cfg.Database.URL)),
	)

	var (
		status database.MigrationStatus
		err    error
	)
	if direction == MigrateDown {
		status, err = database.RollbackMigration(cfg.Database.URL)
	} else {
		status, err = database.MigrateUp(cfg.Database.URL)
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("dirty", status.Dirty),
		slog.Bool("applied", status.Applied),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/healthz", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
