package usecase

import (
	"context"
	"errors"
	"net/url"
	"time"

	"linkpreview/internal/domain"
)

// PreviewUseCase はリンクプレビュー取得のユースケースを実装.
// 検証 → レートリミット → ブロックリスト → キャッシュ → フェッチ → 抽出 → キャッシュ保存 の順に進む.
type PreviewUseCase struct {
	limiter   domain.RateLimiter
	cache     domain.ResultCache
	access    domain.AccessController
	fetcher   domain.Fetcher
	extractor domain.Extractor
	metrics   domain.MetricsCollector
	logger    domain.Logger
	cacheTTL  time.Duration
	now       func() time.Time
}

// PreviewConfig はPreviewUseCaseの設定
type PreviewConfig struct {
	// CacheTTL が0以下ならキャッシュ側のデフォルトTTLを使う
	CacheTTL time.Duration
	Now      func() time.Time
}

// NewPreviewUseCase は新しいPreviewUseCaseインスタンスを作成. access は nil でもよい.
func NewPreviewUseCase(
	limiter domain.RateLimiter,
	cache domain.ResultCache,
	access domain.AccessController,
	fetcher domain.Fetcher,
	extractor domain.Extractor,
	metrics domain.MetricsCollector,
	logger domain.Logger,
	config PreviewConfig,
) *PreviewUseCase {
	if config.Now == nil {
		config.Now = time.Now
	}

	return &PreviewUseCase{
		limiter:   limiter,
		cache:     cache,
		access:    access,
		fetcher:   fetcher,
		extractor: extractor,
		metrics:   metrics,
		logger:    logger,
		cacheTTL:  config.CacheTTL,
		now:       config.Now,
	}
}

// Preview は clientKey のクライアントから要求された rawURL のメタデータを返す.
// 返すエラーは *domain.InputError, *domain.RateLimitError, *domain.FetchError のいずれか.
func (uc *PreviewUseCase) Preview(
	ctx context.Context, clientKey, rawURL string,
) (domain.Metadata, error) {
	uc.metrics.RecordRequest()

	target, err := domain.ParseTarget(rawURL)
	if err != nil {
		uc.metrics.RecordInvalidInput()
		return domain.Metadata{}, err
	}

	decision := uc.limiter.TryConsume(clientKey)
	if !decision.Allowed {
		uc.metrics.RecordRateLimited()
		return domain.Metadata{}, &domain.RateLimitError{
			Key:        clientKey,
			RetryAfter: RetryAfter(decision.ResetAt, uc.now()),
		}
	}

	// ブロックリストの再読み込みはキャッシュ済みの結果にも即座に効かせる
	if uc.access != nil && !uc.access.IsHostAllowed(target.Hostname()) {
		uc.metrics.RecordFetchError(domain.FetchBlocked)
		return domain.Metadata{}, &domain.FetchError{
			Kind: domain.FetchBlocked,
			URL:  target.String(),
		}
	}

	cacheKey := domain.CacheKey(clientKey, target)
	if md, ok := uc.cache.Get(cacheKey); ok {
		uc.metrics.RecordCacheHit()
		return md.WithCached(true), nil
	}
	uc.metrics.RecordCacheMiss()

	result, err := uc.fetch(ctx, target)
	if err != nil {
		return domain.Metadata{}, err
	}

	base := result.FinalURL
	if base == "" {
		base = target.String()
	}
	md := uc.extractor.Extract(result.Body, result.ContentType, base)

	// 呼び出し元が既に離脱していれば古い結果をキャッシュに残さない
	if ctx.Err() != nil {
		uc.metrics.RecordFetchError(domain.FetchCanceled)
		return domain.Metadata{}, &domain.FetchError{
			Kind: domain.FetchCanceled,
			URL:  target.String(),
			Err:  ctx.Err(),
		}
	}

	uc.cache.Set(cacheKey, md, uc.cacheTTL)
	return md.WithCached(false), nil
}

// fetch はフェッチを実行し、失敗を FetchError に揃えてメトリクスに記録する
func (uc *PreviewUseCase) fetch(ctx context.Context, target *url.URL) (*domain.FetchResult, error) {
	uc.metrics.IncrementInFlight()
	defer uc.metrics.DecrementInFlight()

	start := uc.now()
	result, err := uc.fetcher.Fetch(ctx, target.String())
	if err != nil {
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			fe = &domain.FetchError{Kind: domain.FetchNetwork, URL: target.String(), Err: err}
		}
		uc.metrics.RecordFetchError(fe.Kind)
		uc.logger.Warn("Fetch failed", map[string]interface{}{
			"url":      target.String(),
			"kind":     string(fe.Kind),
			"error":    fe.Error(),
			"duration": uc.now().Sub(start).String(),
		})
		return nil, fe
	}

	uc.metrics.AddBytesFetched(int64(len(result.Body)))
	uc.logger.Debug("Fetched target", map[string]interface{}{
		"url":          target.String(),
		"final_url":    result.FinalURL,
		"status":       result.StatusCode,
		"content_type": result.ContentType,
		"bytes":        len(result.Body),
		"duration":     uc.now().Sub(start).String(),
	})
	return result, nil
}

// RetryAfter はウィンドウのリセットまでの待ち時間を秒単位に切り上げて返す. 最小1秒.
func RetryAfter(resetAt, now time.Time) time.Duration {
	wait := resetAt.Sub(now)
	secs := (wait + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}
