package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/schedboard/internal/metrics"
	"github.com/hitoshi/schedboard/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	ExemptRules       []middleware.ExemptRule // nilの場合はDefaultExemptRules
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFEnabled       bool
	CSRFConfig        middleware.CSRFConfig

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	UserService     UserServiceInterface
	ScheduleService ScheduleServiceInterface
	CommentService  CommentServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → SecurityHeaders → CORS → Logging → Metrics → AuthGate → RateLimit(General) → (CSRF)
//
// 認証ゲートは全ルートに掛かり、許可リストに一致するルートのみ素通しする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := deps.ExemptRules
	if rules == nil {
		rules = middleware.DefaultExemptRules()
	}

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))

	var onReject func(reason string)
	var observer LoginObserver
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
		onReject = deps.Metrics.RecordAuthRejected
		observer = deps.Metrics
		if deps.RateLimiter != nil {
			deps.RateLimiter.OnLimited = deps.Metrics.RecordRateLimited
		}
	}

	r.Use(middleware.NewAuthGate(deps.SessionResolver, rules, onReject))

	loginLimit := func(next http.Handler) http.Handler { return next }
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		loginLimit = deps.RateLimiter.LoginMiddleware()
	}
	if deps.CSRFEnabled {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, observer)
	userHandler := NewUserHandler(deps.UserService)
	scheduleHandler := NewScheduleHandler(deps.ScheduleService)
	commentHandler := NewCommentHandler(deps.CommentService)

	// 監視
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// 認証
	r.Route("/auth", func(r chi.Router) {
		r.With(loginLimit).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		if deps.CSRFEnabled {
			r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		}
	})

	// ユーザー管理
	r.Route("/users", func(r chi.Router) {
		r.Post("/", userHandler.Register)
		r.Get("/", userHandler.List)
		r.Put("/{id}", userHandler.Update)
		r.Delete("/{id}", userHandler.Delete)
	})

	// 予定管理
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", scheduleHandler.Create)
		r.Get("/", scheduleHandler.List)
		r.Get("/{id}", scheduleHandler.Get)
		r.Put("/{id}", scheduleHandler.Update)
		r.Delete("/{id}", scheduleHandler.Delete)
	})

	// コメント管理
	r.Route("/comments", func(r chi.Router) {
		r.Post("/", commentHandler.Create)
		r.Get("/schedule/{scheduleId}", commentHandler.ListBySchedule)
		r.Put("/{id}", commentHandler.Update)
		r.Delete("/{id}", commentHandler.Delete)
	})

	return r
}
