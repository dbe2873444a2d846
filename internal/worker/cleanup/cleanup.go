// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 期限切れセッションは読み取り時に無効扱いになるが、行自体は残るため
// ワーカーで定期的にまとめて削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はクリーンアップの既定の実行間隔。
const DefaultInterval = time.Hour

// SessionPurger は期限切れセッションを一括削除するインターフェース。
// repository.SessionRepository が満たす。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PurgeRecorder は削除件数の通知先。メトリクス収集に使う。
type PurgeRecorder interface {
	RecordSessionsPurged(count int64)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 冪等な削除処理を保証する。
type CleanupJob struct {
	purger   SessionPurger
	logger   *slog.Logger
	recorder PurgeRecorder
}

// NewCleanupJob は新しいCleanupJobを生成する。recorderはnilでもよい。
func NewCleanupJob(purger SessionPurger, logger *slog.Logger, recorder PurgeRecorder) *CleanupJob {
	return &CleanupJob{
		purger:   purger,
		logger:   logger,
		recorder: recorder,
	}
}

// Run は期限切れセッションを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.purger.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsPurged(deletedCount)
	}

	duration := time.Since(start)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回、その後interval毎にRunを実行する。
// ctxがキャンセルされるまでブロックする。Runの失敗はログに残して継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.logger.Info("セッションクリーンアップジョブを開始します",
		slog.Duration("interval", interval),
	)

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
