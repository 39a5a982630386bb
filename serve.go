package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/api"
	"github.com/Kammelleon/pdf-qa/internal/config"
	"github.com/Kammelleon/pdf-qa/internal/logging"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/ratelimit"
)

const shutdownGrace = 10 * time.Second

func runServe(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	hub := notify.NewHub()
	local := notify.Multi{notify.Log{Logger: logging.Component(logger, "notify")}, hub}
	a, err := buildApp(ctx, cfg, logger, local)
	if err != nil {
		return err
	}
	defer a.Close()

	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	apiLog := logging.Component(logger, "api")
	handler := api.NewHandler(a.service, api.Options{
		Events:  hub,
		Limiter: ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 0),
		Metrics: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Logger:  &apiLog,
	})
	router := gin.New()
	router.Use(gin.Recovery())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("backend", cfg.Backend.BaseURL).Msg("bridge listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	logger.Info().Msg("bridge shutting down")
	return srv.Shutdown(shutdownCtx)
}
