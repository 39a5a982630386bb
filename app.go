package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/Kammelleon/pdf-qa/internal/backend"
	"github.com/Kammelleon/pdf-qa/internal/config"
	"github.com/Kammelleon/pdf-qa/internal/logging"
	"github.com/Kammelleon/pdf-qa/internal/metrics"
	"github.com/Kammelleon/pdf-qa/internal/notify"
	"github.com/Kammelleon/pdf-qa/internal/redis"
	"github.com/Kammelleon/pdf-qa/internal/service/assistant"
	"github.com/Kammelleon/pdf-qa/internal/service/conversation"
	"github.com/Kammelleon/pdf-qa/internal/service/intake"
)

// app is the assembled client shared by both run modes.
type app struct {
	service  *assistant.Service
	registry *prometheus.Registry
	closers  []func() error
}

// buildApp wires config into the service graph. Notifications always go
// to local; with redis enabled they are mirrored onto the channel too.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, local notify.Sink) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector())
	collector := metrics.New(a.registry)

	client := backend.NewClient(cfg.Backend, nil, logging.Component(logger, "backend"))

	var notifier notify.Sink = local
	if cfg.Redis.Enabled {
		rlog := logging.Component(logger, "redis")
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		notifier, err = mirrorNotifications(ctx, rdb, cfg.Redis.Channel, uuid.NewString(), local, rlog)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("relay notifications: %w", err)
		}
	}

	validator := intake.NewValidator(intake.Config{
		MediaType: cfg.Intake.MediaType,
		MaxBytes:  cfg.Intake.MaxFileBytes,
	})
	dlog := logging.Component(logger, "conversation")
	dialogue := conversation.NewOrchestrator(client, notifier, conversation.Options{
		Observer: collector,
		Logger:   &dlog,
	})
	alog := logging.Component(logger, "assistant")
	svc, err := assistant.NewService(validator, client, dialogue, notifier, assistant.Options{
		Recorder: collector,
		Logger:   &alog,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init assistant service: %w", err)
	}
	a.service = svc
	return a, nil
}

// mirrorNotifications returns a sink that delivers to local and publishes
// to channel. Notifications from other processes are logged only, since
// they belong to other sessions.
func mirrorNotifications(ctx context.Context, broker notify.Broker, channel, origin string, local notify.Sink, log zerolog.Logger) (notify.Sink, error) {
	peers := notify.Log{Logger: log.With().Str("source", "peer").Logger()}
	if err := notify.Relay(ctx, broker, channel, origin, peers, log); err != nil {
		return nil, err
	}
	return notify.Multi{local, notify.NewRedisSink(broker, channel, origin, log)}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
