package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"firequest/config"
	"firequest/db"
	"firequest/events"
	qhttp "firequest/http"
	"firequest/logging"
	"firequest/ml"
	"firequest/monitoring"
	"firequest/pipeline"
	"firequest/session"
)

const defaultConfigPath = "config.yaml"

func main() {
	configFlag := flag.String("config", defaultConfigPath, "path to the YAML config file")
	flag.Parse()

	// 1. Load config
	configPath, err := config.ResolvePath(*configFlag, defaultConfigPath)
	if err != nil {
		log.Fatalf("Failed to locate config: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, level, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 2. Load model artifacts; the service never starts without them
	store, err := ml.LoadStore(cfg.ML)
	if err != nil {
		var startupErr *ml.StartupError
		if errors.As(err, &startupErr) {
			logger.Fatal("failed to load model artifact",
				zap.String("artifact", startupErr.Artifact),
				zap.String("path", startupErr.Path),
				zap.Error(startupErr.Err))
		}
		logger.Fatal("failed to load model store", zap.Error(err))
	}
	logger.Info("model store loaded",
		zap.String("model_type", cfg.ML.ModelType),
		zap.Int("features", store.FeatureWidth()),
		zap.Bool("confidence_scores", store.SupportsConfidence()))

	hub := monitoring.NewHub(logger)
	collector := monitoring.NewMetricsCollector()
	predictionMetrics := monitoring.NewPredictionMetrics(collector)
	recorders := []pipeline.Recorder{hub, predictionMetrics}
	collector.RegisterFunc("fire_stream_clients", monitoring.MetricTypeGauge, "Connected websocket clients",
		func() float64 { return float64(hub.ClientCount()) })

	// 3. Optional sinks
	var audit qhttp.AuditReader
	if cfg.Database.Path != "" {
		auditLog, err := db.Open(cfg.Database.Path)
		if err != nil {
			logger.Fatal("failed to open audit log", zap.String("path", cfg.Database.Path), zap.Error(err))
		}
		defer auditLog.Close()
		recorders = append(recorders, auditLog)
		audit = auditLog
		logger.Info("audit log enabled", zap.String("path", cfg.Database.Path))
	}

	if cfg.Kafka.Enabled() {
		publisher, err := events.NewPublisher(cfg.Kafka, logger)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		defer publisher.Close()
		recorders = append(recorders, publisher)
		registerPublisherMetrics(collector, publisher)
		logger.Info("prediction events enabled", zap.String("bootstrap_servers", cfg.Kafka.BootstrapServers))
	}

	sessions := session.NewManager(cfg.Session, logger)
	collector.RegisterFunc("fire_sessions_active", monitoring.MetricTypeGauge, "Live sessions",
		func() float64 { return float64(sessions.Len()) })
	pipe := pipeline.New(store, logger, recorders...).WithObserver(predictionMetrics)

	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
	}, qhttp.Deps{
		Pipeline: pipe,
		Sessions: sessions,
		Model:    store,
		Audit:    audit,
		Hub:      hub,
		Metrics:  collector,
		Logger:   logger,
	})

	// 4. Run until signalled
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return hub.Run(gctx) })
	if configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, configPath, logger, func(next *config.Config) {
				if err := logging.SetLevel(level, next.Log.Level); err != nil {
					logger.Warn("ignoring log level change", zap.Error(err))
					return
				}
				logger.Info("log level updated", zap.String("level", next.Log.Level))
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return server.Stop(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Error("service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("exiting")
}

func registerPublisherMetrics(collector *monitoring.MetricsCollector, publisher *events.Publisher) {
	collector.RegisterFunc("fire_events_sent_total", monitoring.MetricTypeCounter,
		"Prediction events handed to Kafka", func() float64 {
			sent, _, _ := publisher.Stats()
			return float64(sent)
		})
	collector.RegisterFunc("fire_events_acked_total", monitoring.MetricTypeCounter,
		"Prediction events acknowledged by Kafka", func() float64 {
			_, acked, _ := publisher.Stats()
			return float64(acked)
		})
	collector.RegisterFunc("fire_events_failed_total", monitoring.MetricTypeCounter,
		"Prediction events Kafka rejected", func() float64 {
			_, _, failed := publisher.Stats()
			return float64(failed)
		})
}
