// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 期限切れの行は検証時に拒否されるため、削除はテーブルの肥大化を防ぐためだけに行う。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は削除ジョブの既定の実行間隔。
const DefaultInterval = time.Hour

// ExpiredSessionDeleter は期限切れセッションの削除を抽象化するインターフェース。
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PurgeMetrics は削除件数の記録先。
type PurgeMetrics interface {
	RecordSessionsPurged(count int64)
}

// SessionCleanupJob は期限切れセッションを削除するジョブ。
// 削除は冪等で、対象がなくてもエラーにならない。
type SessionCleanupJob struct {
	sessions ExpiredSessionDeleter
	metrics  PurgeMetrics
	logger   *slog.Logger
	Interval time.Duration
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
// metricsはnilでもよい。
func NewSessionCleanupJob(sessions ExpiredSessionDeleter, metrics PurgeMetrics, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{
		sessions: sessions,
		metrics:  metrics,
		logger:   logger,
		Interval: DefaultInterval,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsPurged(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降Intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。個々の実行の失敗でループは止まらない。
func (j *SessionCleanupJob) Start(ctx context.Context) {
	interval := j.Interval
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
