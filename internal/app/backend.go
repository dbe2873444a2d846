package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/schedboard/internal/config"
	"github.com/hitoshi/schedboard/internal/database"
	"github.com/hitoshi/schedboard/internal/handler"
	"github.com/hitoshi/schedboard/internal/repository"
	"github.com/hitoshi/schedboard/internal/repository/memory"
)

// backend は起動モードが共有する永続化層一式。
type backend struct {
	users     repository.UserRepository
	schedules repository.ScheduleRepository
	comments  repository.CommentRepository
	sessions  repository.SessionRepository
	health    handler.HealthChecker

	// shared はプロセス外のストアを使うかどうか。workerはtrueのときのみ意味を持つ。
	shared  bool
	closers []func() error
}

// openBackend はSTORE_BACKENDとREDIS_URLに従ってリポジトリを構築する。
// REDIS_URLが設定されている場合、セッションのみRedisに保存する。
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	b := &backend{}

	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		store := memory.New()
		b.users = store.Users()
		b.schedules = store.Schedules()
		b.comments = store.Comments()
		b.sessions = store.Sessions()
		b.health = store
		slog.Warn("using in-memory store; data is lost on restart")
	default:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.users = repository.NewPostgresUserRepo(db)
		b.schedules = repository.NewPostgresScheduleRepo(db)
		b.comments = repository.NewPostgresCommentRepo(db)
		b.sessions = repository.NewPostgresSessionRepo(db)
		b.health = db
		b.shared = true
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			b.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		b.closers = append(b.closers, rdb.Close)
		b.sessions = repository.NewRedisSessionRepo(rdb)
		slog.Info("redis session store enabled", slog.String("addr", opts.Addr))
	}

	return b, nil
}

// Close は開いた接続をすべて閉じる。
func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
