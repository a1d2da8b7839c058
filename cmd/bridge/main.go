package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/armon/go-metrics"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/backend"
	"github.com/t77yq/task-telemetry/internal/config"
	"github.com/t77yq/task-telemetry/internal/emitter"
	"github.com/t77yq/task-telemetry/internal/lifecycle"
	"github.com/t77yq/task-telemetry/internal/monitor"
	"github.com/t77yq/task-telemetry/internal/service"
	"github.com/t77yq/task-telemetry/internal/storage"
	"github.com/t77yq/task-telemetry/internal/tags"
)

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.Development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func connectNATS(cfg config.NATSConfig, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("task-telemetry"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(5 * time.Second),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.DrainTimeout(30 * time.Second),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	// Connect with retry
	var nc *nats.Conn
	var err error
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.URL, opts...)
		if err == nil {
			return nc, nil
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	return nil, err
}

func main() {
	// Configuration errors are fatal before anything is wired.
	cfg, err := config.Load(os.Getenv("TASK_TELEMETRY_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Backend client
	client, err := backend.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create telemetry backend", zap.Error(err))
	}
	if inmem, ok := client.(*backend.Inmem); ok {
		// Dump in-memory metrics to stderr on SIGUSR1.
		inmemSignal := metrics.DefaultInmemSignal(inmem.Sink())
		defer inmemSignal.Stop()
	}

	// Emission journal
	var journal *storage.SQLiteJournal
	var pruner *storage.RetentionPruner
	dispatchCfg := emitter.DispatcherConfig{
		QueueSize: cfg.Dispatch.QueueSize,
		Workers:   cfg.Dispatch.Workers,
	}
	if cfg.Journal.Path != "" {
		journal, err = storage.NewSQLiteJournal(logger, cfg.Journal.Path)
		if err != nil {
			logger.Fatal("Failed to open emission journal", zap.Error(err))
		}
		dispatchCfg.Journal = journal

		pruner = storage.NewRetentionPruner(journal, cfg.Journal.Retention, cfg.Journal.PruneSchedule, logger)
		if err := pruner.Start(ctx); err != nil {
			logger.Fatal("Failed to start journal pruner", zap.Error(err))
		}
	}

	dispatcher := emitter.NewDispatcher(client, dispatchCfg, logger)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Fatal("Failed to start dispatcher", zap.Error(err))
	}

	defaults := tags.NewDefaultProvider(cfg.DefaultEventTags, cfg.Environment)
	metricEmitter := emitter.NewMetricEmitter(cfg.MetricNamespace, defaults, dispatcher)
	eventEmitter := emitter.NewEventEmitter(defaults, dispatcher)

	var collector lifecycle.Collector = lifecycle.NoopCollector{}
	if cfg.Collector == config.CollectorDatadog {
		collector = lifecycle.NewHandler(metricEmitter, eventEmitter, logger)
	}

	var hostStats *monitor.HostStatsReporter
	if cfg.HostStats.Enabled {
		hostStats = monitor.NewHostStatsReporter(metricEmitter, cfg.HostStats.Interval, logger)
		if err := hostStats.Start(ctx); err != nil {
			logger.Fatal("Failed to start host stats reporter", zap.Error(err))
		}
	}

	// Self metrics
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Lifecycle notifications
	nc, err := connectNATS(cfg.NATS, logger)
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}

	notifications := service.NewNotificationService(js, service.NotificationConfig{
		Stream:        cfg.NATS.Stream,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Durable:       cfg.NATS.Durable,
	}, logger)
	if err := notifications.EnsureStream(); err != nil {
		logger.Fatal("Failed to set up lifecycle stream", zap.Error(err))
	}
	if err := notifications.Subscribe(ctx, collector); err != nil {
		logger.Fatal("Failed to subscribe to lifecycle notifications", zap.Error(err))
	}

	logger.Info("Task telemetry bridge running",
		zap.String("backend", cfg.Backend.Kind),
		zap.String("collector", cfg.Collector),
		zap.String("namespace", cfg.MetricNamespace))

	// Wait for shutdown signal
	<-ctx.Done()

	// Graceful shutdown: stop intake, then drain what is queued.
	notifications.Stop()
	if hostStats != nil {
		hostStats.Stop()
	}
	dispatcher.Stop()

	if pruner != nil {
		pruner.Stop()
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			logger.Error("Failed to close emission journal", zap.Error(err))
		}
	}
	if err := client.Close(); err != nil {
		logger.Error("Failed to close telemetry backend", zap.Error(err))
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down metrics server", zap.Error(err))
		}
	}

	logger.Info("Bridge shut down gracefully")
}
