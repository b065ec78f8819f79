// Package cleanup は古い会話の自動削除ジョブを提供する。
// 最終メッセージが保持期間を超えた会話を日次バッチで削除する。
// messagesはCASCADE削除で自動的に処理される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval はジョブの実行間隔。
const DefaultInterval = 24 * time.Hour

// ConversationPurger は保持期間を超えた会話を削除する。
type ConversationPurger interface {
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeletionObserver は削除件数を記録する。nil可。
type DeletionObserver interface {
	RecordConversationsDeleted(n int64)
}

// CleanupJob は保持期間を超過した会話の自動削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	purger        ConversationPurger
	observer      DeletionObserver
	logger        *slog.Logger
	RetentionDays int // 0以下の場合は削除しない
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(purger ConversationPurger, observer DeletionObserver, logger *slog.Logger, retentionDays int) *CleanupJob {
	return &CleanupJob{
		purger:        purger,
		observer:      observer,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Enabled は保持期間が設定されているかを返す。
func (j *CleanupJob) Enabled() bool {
	return j.RetentionDays > 0
}

// Run は保持期間を超過した会話を1回削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	if !j.Enabled() {
		j.logger.Info("会話の保持期間が未設定のためクリーンアップをスキップします")
		return nil
	}

	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.purger.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("会話クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("会話クリーンアップの実行に失敗: %w", err)
	}

	if j.observer != nil {
		j.observer.RecordConversationsDeleted(deleted)
	}

	j.logger.Info("会話クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以後interval間隔で実行する。
// コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	// 失敗はRun内でログ済み。次回の実行で再試行する。
	_ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
