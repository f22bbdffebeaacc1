// Package main запускает HTTP-сервер сервиса truthstake.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/truthstake/internal/config"
	"github.com/mmeshcher/truthstake/internal/consensus"
	"github.com/mmeshcher/truthstake/internal/events"
	"github.com/mmeshcher/truthstake/internal/handler"
	"github.com/mmeshcher/truthstake/internal/middleware"
	"github.com/mmeshcher/truthstake/internal/repository"
	"github.com/mmeshcher/truthstake/internal/reputation"
	"github.com/mmeshcher/truthstake/internal/service"
	"github.com/mmeshcher/truthstake/internal/stakes"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var store repository.Store
	if cfg.DatabaseURI != "" {
		store, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory store")
		store = repository.NewMemoryStore()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinks := []events.Sink{{Name: "log", Publisher: events.NewLogPublisher(logger)}}

	var kafkaPublisher *events.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		if err != nil {
			sugar.Fatalw("kafka publisher error", "error", err.Error())
		}
		// Писатель живёт дольше сигнального контекста: его останавливает Stop после svc.Close.
		kafkaPublisher.Start(context.Background())
		sinks = append(sinks, events.Sink{Name: "kafka", Publisher: kafkaPublisher})
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, events.Sink{Name: "webhook", Publisher: events.NewWebhookClient(cfg.WebhookURL)})
	}

	tieBreak, _ := cfg.TieBreakResolution()
	opts := service.Options{
		StartingBalance: cfg.StartingBalance,
		Limits:          stakes.Limits{Min: cfg.MinStake, Max: cfg.MaxStake},
		Consensus: consensus.Policy{
			Threshold:    cfg.ResolveThreshold,
			Window:       cfg.ResolveWindow,
			TieExtension: cfg.TieExtension,
			TieBreak:     tieBreak,
		},
		Reputation:   reputation.DefaultPolicy(),
		EagerResolve: cfg.EagerResolve,
		ScanInterval: cfg.ScanInterval,
		InboxSize:    events.DefaultInboxSize,

		EventQueueSize: cfg.EventQueueSize,
	}

	svc := service.NewService(store, opts, logger, sinks...)

	auth := middleware.NewAuth(cfg.AuthSecret, cfg.SessionTTL, logger)
	h := handler.NewHandler(svc, logger, auth)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Планировщик разрешения утверждений по времени и дорасчёта после сбоев
	g.Go(func() error {
		return svc.RunResolver(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting truthstake server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	waitErr := g.Wait()

	// Очереди событий сбрасываются в Kafka до остановки её писателя.
	if err := svc.Close(); err != nil {
		sugar.Warnw("service close", "error", err)
	}
	if kafkaPublisher != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := kafkaPublisher.Stop(stopCtx); err != nil {
			sugar.Warnw("kafka publisher stop", "error", err)
		}
		cancel()
	}

	if waitErr != nil {
		sugar.Fatalw("application terminated with error", "error", waitErr)
	}
}
