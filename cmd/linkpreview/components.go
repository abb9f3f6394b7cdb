package main

import (
	"linkpreview/internal/config"
	"linkpreview/internal/extract"
	"linkpreview/internal/interface/connection"
	"linkpreview/internal/interface/fetcher"
	"linkpreview/internal/interface/repository/access"
	"linkpreview/internal/interface/repository/cache"
	"linkpreview/internal/interface/repository/logger"
	"linkpreview/internal/interface/repository/metrics"
	"linkpreview/internal/interface/repository/ratelimit"
	"linkpreview/internal/usecase"
)

// components はサービスを構成する部品
type components struct {
	logger  *logger.Repository
	access  *access.Repository
	limiter *ratelimit.Repository
	cache   *cache.Repository
	metrics *metrics.Repository
	preview *usecase.PreviewUseCase
}

func newLogger(cfg *config.Config) (*logger.Repository, error) {
	return logger.New(logger.Options{
		Level:    logger.ParseLevel(cfg.Log.Level),
		JSON:     cfg.Log.JSON,
		Dir:      cfg.Log.Dir,
		Filename: cfg.Log.File,
	})
}

// newComponents は設定から部品を組み立てる. 呼び出し側が logger を閉じる.
func newComponents(cfg *config.Config) (*components, error) {
	loggerRepo, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	// フェッチ先ブロックリストの初期化
	accessRepo, err := access.New(cfg.Access.BlocklistFile, loggerRepo)
	if err != nil {
		loggerRepo.Close()
		return nil, err
	}

	guard := connection.NewGuard(connection.Config{
		AllowPrivate: cfg.Fetch.AllowPrivateNetworks,
		DialTimeout:  cfg.Fetch.Timeout,
		Access:       accessRepo,
	})

	maxRedirects := cfg.Fetch.MaxRedirects
	if maxRedirects == 0 {
		// Fetcher では0が既定値を意味するため、リダイレクト禁止は負数で渡す
		maxRedirects = -1
	}
	fetch := fetcher.New(fetcher.Config{
		Timeout:       cfg.Fetch.Timeout,
		MaxRedirects:  maxRedirects,
		MaxBodyBytes:  cfg.Fetch.MaxBodyBytes,
		MaxConcurrent: cfg.Fetch.MaxConcurrent,
		UserAgent:     cfg.Fetch.UserAgent,
		Accept:        cfg.Fetch.Accept,
		Access:        accessRepo,
	}, guard)

	limiter := ratelimit.New(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	resultCache := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	metricsRepo := metrics.New(cfg.Metrics.File)

	preview := usecase.NewPreviewUseCase(
		limiter,       // domain.RateLimiter
		resultCache,   // domain.ResultCache
		accessRepo,    // domain.AccessController
		fetch,         // domain.Fetcher
		extract.New(), // domain.Extractor
		metricsRepo,   // domain.MetricsCollector
		loggerRepo,    // domain.Logger
		usecase.PreviewConfig{CacheTTL: cfg.Cache.TTL},
	)

	return &components{
		logger:  loggerRepo,
		access:  accessRepo,
		limiter: limiter,
		cache:   resultCache,
		metrics: metricsRepo,
		preview: preview,
	}, nil
}
