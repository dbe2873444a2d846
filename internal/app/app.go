package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/schedboard/internal/auth"
	"github.com/hitoshi/schedboard/internal/comment"
	"github.com/hitoshi/schedboard/internal/config"
	"github.com/hitoshi/schedboard/internal/credential"
	"github.com/hitoshi/schedboard/internal/database"
	"github.com/hitoshi/schedboard/internal/handler"
	"github.com/hitoshi/schedboard/internal/logger"
	"github.com/hitoshi/schedboard/internal/metrics"
	"github.com/hitoshi/schedboard/internal/middleware"
	"github.com/hitoshi/schedboard/internal/schedule"
	"github.com/hitoshi/schedboard/internal/security"
	"github.com/hitoshi/schedboard/internal/session"
	"github.com/hitoshi/schedboard/internal/user"
	"github.com/hitoshi/schedboard/internal/validation"
	"github.com/hitoshi/schedboard/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .envを読み込む（既存の環境変数が優先）
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetLevel(cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
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
		slog.String("store_backend", cfg.StoreBackend),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	limiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin))
	defer limiter.Stop()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(cfg, b, limiter, collector, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// インメモリストアは別プロセスのworkerと共有できないため、サーバー内で掃除する
	if !b.shared {
		go cleanup.NewCleanupJob(b.sessions, slog.Default(), collector).Start(ctx, cfg.SessionCleanupInterval)
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newRouter はサービス層を組み立ててルーターを返す。
func newRouter(
	cfg *config.Config,
	b *backend,
	limiter *middleware.RateLimiter,
	collector metrics.MetricsCollector,
	gatherer prometheus.Gatherer,
) http.Handler {
	sessions := session.NewStore(b.sessions, cfg.SessionMaxAgeDuration())
	hasher := credential.NewBcryptHasher(cfg.BcryptCost)
	validate := validation.New()
	sanitizer := security.NewTextSanitizer()

	return handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionResolver:   sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		CSRFEnabled:       cfg.CSRFEnabled,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		HealthChecker: b.health,
		Metrics:       collector,
		Gatherer:      gatherer,

		AuthService: auth.NewService(b.users, sessions, hasher, validate),
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:     user.NewService(b.users, sessions, hasher, validate),
		ScheduleService: schedule.NewService(b.schedules, b.users, sanitizer, validate),
		CommentService:  comment.NewService(b.comments, b.schedules, b.users, sanitizer, validate),
	})
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if !b.shared {
		return fmt.Errorf("worker requires a shared store: STORE_BACKEND=%s", cfg.StoreBackend)
	}

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
	)

	cleanup.NewCleanupJob(b.sessions, slog.Default(), nil).Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// 引数なしまたは"up"で未適用のマイグレーションを全て適用し、
// "down [steps]"で指定ステップ数（既定1）だけロールバックする。
func runMigrate(cfg *config.Config, args []string) error {
	if cfg.StoreBackend != config.StoreBackendPostgres {
		return fmt.Errorf("migrate requires STORE_BACKEND=%s", config.StoreBackendPostgres)
	}

	m, err := ParseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("direction", string(m.Direction)),
		slog.Int("steps", m.Steps),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if m.Direction == MigrateDown {
		if err := database.RollbackMigrations(cfg.DatabaseURL, m.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	} else if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
