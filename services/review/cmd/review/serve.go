package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shotreview/internal/usertoken"
	"shotreview/internal/util"
	"shotreview/pkg/storage"
	"shotreview/services/review/internal/app"
	"shotreview/services/review/internal/config"
	"shotreview/services/review/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(config.ResolvePath(path))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg config.FileConfig) error {
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	appCfg, err := appConfig(cfg, logger)
	if err != nil {
		return err
	}
	appCore, err := app.New(ctx, appCfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer appCore.Close()

	httpServer, err := server.New(server.Config{
		App:                       appCore,
		MaxUploadBytes:            cfg.MaxUploadBytes,
		TrustedProxyCIDRs:         cfg.TrustedProxyCIDRs,
		RedisAddr:                 cfg.RedisAddr,
		RedisPassword:             cfg.RedisPassword,
		CaptureRateLimitPerMinute: cfg.CaptureRateLimitPerMinute,
		UploadRateLimitPerMinute:  cfg.UploadRateLimitPerMinute,
		MaxSurfaceSize:            cfg.MaxSurfaceSize,
		DOMAllowHosts:             cfg.DOMAllowHosts,
		DOMAllowPrivate:           cfg.DOMAllowPrivate,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("review server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func appConfig(cfg config.FileConfig, logger *slog.Logger) (app.Config, error) {
	leeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway)
	if err != nil {
		return app.Config{}, err
	}
	remoteTimeout, err := config.ParseDuration("remoteTimeout", cfg.RemoteTimeout)
	if err != nil {
		return app.Config{}, err
	}
	captureTimeout, err := config.ParseDuration("captureTimeout", cfg.CaptureTimeout)
	if err != nil {
		return app.Config{}, err
	}
	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = "http://localhost:" + cfg.Port
	}
	out := app.Config{
		PublicBaseURL:     publicBase,
		CacheBackend:      cfg.CacheBackend,
		CachePath:         cfg.CachePath,
		RedisAddr:         cfg.RedisAddr,
		RedisPassword:     cfg.RedisPassword,
		DatabaseURL:       cfg.DatabaseURL,
		AMQPURL:           cfg.AMQPURL,
		AMQPExchange:      cfg.AMQPExchange,
		EventStream:       cfg.EventStream,
		BrowserEnabled:    cfg.BrowserEnabled,
		BrowserControlURL: cfg.BrowserControlURL,
		BrowserBin:        cfg.BrowserBin,
		Auth: usertoken.Config{
			Users:             cfg.Users,
			ReviewTokenSecret: cfg.ReviewTokenSecret,
			Issuer:            cfg.JWTIssuer,
			Audience:          cfg.JWTAudience,
			Leeway:            leeway,
		},
		RemoteTimeout:    remoteTimeout,
		CaptureTimeout:   captureTimeout,
		ClearConcurrency: cfg.ClearConcurrency,
		Logger:           logger,
	}
	if cfg.MinioEndpoint != "" {
		out.Minio = &storage.MinioConfig{
			Endpoint:      cfg.MinioEndpoint,
			AccessKey:     cfg.MinioAccessKey,
			SecretKey:     cfg.MinioSecretKey,
			Bucket:        cfg.MinioBucket,
			UseSSL:        cfg.MinioUseSSL,
			PublicBaseURL: cfg.MinioPublicBaseURL,
			PublicRead:    cfg.MinioPublicRead,
		}
	}
	return out, nil
}
