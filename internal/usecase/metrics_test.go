package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkpreview/internal/interface/repository/metrics"
)

func TestMetricsUseCase_PeriodicSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	collector := metrics.New(path)
	collector.RecordRequest()

	uc := NewMetricsUseCase(collector, nopLogger{}, MetricsConfig{SaveInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	uc.Start(ctx)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	uc.Stop()
	uc.Stop()
}

func TestMetricsUseCase_StopSavesFinalSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	collector := metrics.New(path)

	uc := NewMetricsUseCase(collector, nopLogger{}, MetricsConfig{SaveInterval: time.Hour})
	uc.Start(context.Background())
	collector.RecordRequest()
	uc.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_requests": 1`)
	assert.Equal(t, int64(1), uc.GetMetricsSnapshot().TotalRequests)
}
