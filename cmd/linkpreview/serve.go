package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"linkpreview/internal/config"
	"linkpreview/internal/interface/handler"
	"linkpreview/internal/usecase"
)

func newServeCommand(v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the preview API and metrics servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("addr", "", "API listen address (overrides server.addr)")
	cmd.Flags().String("metrics-addr", "", "Metrics listen address (overrides server.metrics_addr)")
	bindFlags(v, cmd.Flags(), map[string]string{
		"server.addr":         "addr",
		"server.metrics_addr": "metrics-addr",
	})

	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	c, err := newComponents(cfg)
	if err != nil {
		return err
	}
	defer c.logger.Close()

	clientIP, err := handler.NewClientIPResolver(cfg.ClientIP.TrustedProxies, cfg.ClientIP.Header)
	if err != nil {
		c.logger.Error("Invalid client IP configuration", err, nil)
		return err
	}

	// シャットダウンハンドラの設定
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	// メトリクスのユースケース作成
	metricsUseCase := usecase.NewMetricsUseCase(
		c.metrics,
		c.logger,
		usecase.MetricsConfig{SaveInterval: cfg.Metrics.SaveInterval},
	)
	metricsUseCase.Start(ctx)
	defer metricsUseCase.Stop()

	go c.limiter.RunPruner(ctx, cfg.RateLimit.PruneInterval, c.logger)
	go func() {
		if err := c.access.Watch(ctx); err != nil {
			c.logger.Error("Blocklist watcher stopped", err, nil)
		}
	}()

	// ハンドラーの作成
	previewHandler := handler.NewPreviewHandler(c.preview, clientIP, c.logger)
	metricsHandler := handler.NewMetricsHandler(metricsUseCase, c.metrics.Registry(), c.logger)

	apiServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           previewHandler.Routes(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
	metricsServer := &http.Server{
		Addr:              cfg.Server.MetricsAddr,
		Handler:           metricsHandler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// サーバーの起動
	go func() {
		c.logger.Info("Starting API server", map[string]interface{}{"addr": cfg.Server.Addr})
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("API server error", err, nil)
			cancel()
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		go func() {
			c.logger.Info("Starting metrics server", map[string]interface{}{"addr": cfg.Server.MetricsAddr})
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				c.logger.Error("Metrics server error", err, nil)
				cancel()
			}
		}()
	}

	// シグナル待機
	select {
	case <-signalChan:
		c.logger.Info("Shutdown signal received", nil)
	case <-ctx.Done():
		c.logger.Info("Shutdown initiated", nil)
	}

	// グレースフルシャットダウン
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("Error shutting down API server", err, nil)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		c.logger.Error("Error shutting down metrics server", err, nil)
	}
	cancel()

	c.logger.Info("Shutdown complete", nil)
	return nil
}
