package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/larriantoniy/im_relay/internal/adapters/httpapi"
	"github.com/larriantoniy/im_relay/internal/adapters/qrcode"
	"github.com/larriantoniy/im_relay/internal/adapters/redisstream"
	"github.com/larriantoniy/im_relay/internal/adapters/tg"
	"github.com/larriantoniy/im_relay/internal/adapters/wa"
	"github.com/larriantoniy/im_relay/internal/adapters/webhook"
	"github.com/larriantoniy/im_relay/internal/config"
	"github.com/larriantoniy/im_relay/internal/ports"
	"github.com/larriantoniy/im_relay/internal/useCases"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.Env)
	if cfg.Env == config.EnvProd {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	session := newSession(cfg, logger)
	sinks, closers := newSinks(ctx, cfg, logger)

	machine := useCases.NewSessionStateMachine(logger, nil)
	var gateOpts []useCases.GateOption
	if cfg.Session.MinReadyAge > 0 {
		gateOpts = append(gateOpts, useCases.WithMinReadyAge(cfg.Session.MinReadyAge, nil))
	}
	gate := useCases.NewReadinessGate(machine, gateOpts...)

	delivery := useCases.NewDeliveryManager(logger, gate, session, useCases.DeliveryConfig{
		SendTimeout: cfg.Session.SendTimeout,
	})
	chats := useCases.NewChatDirectory(logger, gate, session, useCases.DirectoryConfig{
		ListTimeout: cfg.Session.ListTimeout,
	})
	relay := useCases.NewInboundRelay(logger, useCases.RelayConfig{
		ForwardTimeout: cfg.Session.ForwardTimeout,
	}, sinks...)

	var runnerOpts []useCases.RunnerOption
	if !cfg.Session.DisableTerminalQR {
		runnerOpts = append(runnerOpts, useCases.WithQRHandler(func(payload string) {
			qrcode.PrintTerminal(os.Stdout, payload)
			logger.Info("QR code displayed in terminal, also available at /qr")
		}))
	}
	runner := useCases.NewRunner(logger, session, machine, relay, useCases.RunnerConfig{
		InitTimeout:     cfg.Session.InitTimeout,
		ShutdownTimeout: cfg.Session.ShutdownTimeout,
	}, runnerOpts...)

	api := httpapi.NewServer(logger, httpapi.Config{
		Addr:            cfg.HTTPAddr(),
		ShutdownTimeout: cfg.Session.ShutdownTimeout,
		SendRate:        cfg.HTTP.SendRate,
		SendBurst:       cfg.HTTP.SendBurst,
		APIKey:          cfg.HTTP.APIKey,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
	}, gate, delivery, chats, httpapi.Info{
		Backend:           cfg.Backend,
		Sinks:             relay.Sinks(),
		WebhookConfigured: cfg.Webhook.URL != "",
	}, nil)

	logger.Info("relay starting",
		"backend", cfg.Backend,
		"addr", cfg.HTTPAddr(),
		"sinks", relay.Sinks(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return api.Run(gctx) })

	err = g.Wait()
	closeSinks(logger, closers)
	if err != nil {
		logger.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("exit")
}

func newSession(cfg *config.AppConfig, logger *slog.Logger) ports.Session {
	switch cfg.Backend {
	case config.BackendTelegram:
		return tg.New(logger, tg.Config{
			APIID:        cfg.Telegram.ApiID,
			APIHash:      cfg.Telegram.ApiHash,
			SessionsDir:  cfg.Telegram.BaseDir,
			SessionName:  cfg.Telegram.SessionName,
			LogVerbosity: cfg.Telegram.LogVerbosity,
		})
	default:
		return wa.New(logger, wa.Config{StorePath: cfg.WhatsApp.StorePath})
	}
}

func newSinks(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) ([]ports.Sink, []io.Closer) {
	var sinks []ports.Sink
	var closers []io.Closer

	if cfg.Webhook.URL != "" {
		sinks = append(sinks, webhook.New(webhook.Config{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Headers: cfg.Webhook.Headers,
		}, logger))
	} else {
		logger.Warn("N8N_WEBHOOK_URL not set, inbound messages will not be posted to a webhook")
	}

	if cfg.Redis.Addr != "" {
		rs := redisstream.New(redisstream.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		}, logger)
		if err := rs.Ping(ctx); err != nil {
			// сообщения всё равно пробуем писать: Redis может подняться позже
			logger.Warn("redis unreachable at startup", "addr", cfg.Redis.Addr, "error", err)
		}
		sinks = append(sinks, rs)
		closers = append(closers, rs)
	}
	return sinks, closers
}

// closeSinks закрывает все приёмники, ошибка одного не мешает остальным
func closeSinks(logger *slog.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("sink close failed", "sink", fmt.Sprintf("%T", c), "error", err)
		}
	}
}

func setupLogger(env string) *slog.Logger {
	var logger *slog.Logger

	switch env {
	case config.EnvDev:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	default:
		logger = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return logger
}
