package usecase

import (
	"context"
	"sync"
	"time"

	"linkpreview/internal/domain"
)

// MetricsSaver はスナップショットを永続化できるコレクタ
type MetricsSaver interface {
	SaveMetrics(*domain.MetricsSnapshot) error
}

// MetricsUseCase はメトリクス関連のユースケースを実装
type MetricsUseCase struct {
	metrics      domain.MetricsCollector
	logger       domain.Logger
	saveInterval time.Duration
	done         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
}

// MetricsConfig はメトリクスの設定を表す
type MetricsConfig struct {
	SaveInterval time.Duration
}

// NewMetricsUseCase は新しいMetricsUseCaseインスタンスを作成
func NewMetricsUseCase(
	metrics domain.MetricsCollector, logger domain.Logger, config MetricsConfig,
) *MetricsUseCase {
	if config.SaveInterval <= 0 {
		config.SaveInterval = 1 * time.Minute
	}

	return &MetricsUseCase{
		metrics:      metrics,
		logger:       logger,
		saveInterval: config.SaveInterval,
		done:         make(chan struct{}),
	}
}

// Start は定期的なメトリクス保存を開始. コレクタが MetricsSaver でなければ何もしない.
func (uc *MetricsUseCase) Start(ctx context.Context) {
	if _, ok := uc.metrics.(MetricsSaver); !ok {
		return
	}

	uc.logger.Info("Starting metrics collection", map[string]interface{}{
		"save_interval": uc.saveInterval.String(),
	})

	uc.wg.Add(1)
	go uc.startPeriodicSave(ctx)
}

// Stop はメトリクス収集を停止し、最後のスナップショットを保存する
func (uc *MetricsUseCase) Stop() {
	uc.stopOnce.Do(func() {
		close(uc.done)
		uc.wg.Wait()
		if err := uc.SaveMetrics(); err != nil {
			uc.logger.Error("Failed to save metrics", err, nil)
		}
		uc.logger.Info("Stopped metrics collection", nil)
	})
}

// startPeriodicSave は定期的なメトリクス保存を開始
func (uc *MetricsUseCase) startPeriodicSave(ctx context.Context) {
	defer uc.wg.Done()

	ticker := time.NewTicker(uc.saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := uc.SaveMetrics(); err != nil {
				uc.logger.Error("Failed to save metrics", err, nil)
			}
		case <-ctx.Done():
			return
		case <-uc.done:
			return
		}
	}
}

// SaveMetrics は現在のメトリクスを保存
func (uc *MetricsUseCase) SaveMetrics() error {
	saver, ok := uc.metrics.(MetricsSaver)
	if !ok {
		return nil
	}

	snapshot := uc.GetMetricsSnapshot()
	return saver.SaveMetrics(&snapshot)
}

// GetMetricsSnapshot は現在のメトリクスのスナップショットを取得
func (uc *MetricsUseCase) GetMetricsSnapshot() domain.MetricsSnapshot {
	return uc.metrics.Snapshot()
}
