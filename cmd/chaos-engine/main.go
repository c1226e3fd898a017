package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-chaos/internal/analyzer"
	"github.com/miradorstack/mirador-chaos/internal/api"
	"github.com/miradorstack/mirador-chaos/internal/cache"
	"github.com/miradorstack/mirador-chaos/internal/chaosmetrics"
	"github.com/miradorstack/mirador-chaos/internal/config"
	"github.com/miradorstack/mirador-chaos/internal/graph"
	"github.com/miradorstack/mirador-chaos/internal/injector"
	"github.com/miradorstack/mirador-chaos/internal/metrics"
	"github.com/miradorstack/mirador-chaos/internal/orchestrator"
	"github.com/miradorstack/mirador-chaos/internal/registry"
	"github.com/miradorstack/mirador-chaos/internal/services"
	"github.com/miradorstack/mirador-chaos/internal/simulator"
	"github.com/miradorstack/mirador-chaos/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-chaos", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			KeyPrefix:    cfg.Cache.KeyPrefix,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	var graphProvider graph.Provider
	switch {
	case cfg.Graph.URL != "":
		graphProvider = graph.NewRemoteProvider(cfg.Graph.URL, "/api/v1/topology", cfg.Graph.Timeout, cacheProvider, cfg.Cache.GraphTTL)
	case cfg.Graph.FilePath != "":
		g, err := graph.LoadFile(cfg.Graph.FilePath)
		if err != nil {
			logger.Error("failed to load dependency graph", slog.Any("error", err))
			os.Exit(1)
		}
		graphProvider = graph.NewStatic(g)
	default:
		graphProvider = graph.NewStatic(graph.Builtin())
	}

	reg := registry.New(logger)
	if err := reg.LoadCatalog(cfg.Registry.CatalogPath); err != nil {
		logger.Error("failed to load fault catalog", slog.Any("error", err))
		os.Exit(1)
	}

	store := chaosmetrics.NewStore(logger, chaosmetrics.Config{
		MaxPointsPerMetric:  cfg.Metrics.MaxPointsPerMetric,
		Retention:           cfg.Metrics.Retention,
		AggregationInterval: cfg.Metrics.AggregationInterval,
		CleanupInterval:     cfg.Metrics.CleanupInterval,
		BucketSize:          cfg.Metrics.BucketSize,
	})
	store.Start()
	defer store.Close()

	inj := injector.New(logger, injector.Config{
		Enabled:             cfg.Injector.Enabled,
		MaxConcurrentFaults: cfg.Injector.MaxConcurrentFaults,
		FaultProbability:    cfg.Injector.FaultProbability,
		HistoryLimit:        cfg.Injector.HistoryLimit,
		Targets:             cfg.Injector.Targets,
		TickMin:             cfg.Injector.TickMin,
		TickMax:             cfg.Injector.TickMax,
		PolicyInterval:      cfg.Injector.PolicyInterval,
	}, reg, nil, store, nil)
	inj.Start()
	defer inj.Close()

	sim := simulator.New(logger, simulator.Config{
		MaxDepth:     cfg.Simulator.MaxDepth,
		Probability:  cfg.Simulator.Probability,
		RecoveryTime: cfg.Simulator.RecoveryTime,
		HistoryLimit: cfg.Simulator.HistoryLimit,
	}, graphProvider, inj, store, nil)
	if err := sim.LoadRules(cfg.Simulator.RulesPath); err != nil {
		logger.Error("failed to load propagation rules", slog.Any("error", err))
		os.Exit(1)
	}
	defer sim.Close()

	anl := analyzer.New(logger, analyzer.Config{
		AnalysisInterval: cfg.Analyzer.AnalysisInterval,
		SettleDelay:      cfg.Analyzer.SettleDelay,
		HistoryLimit:     cfg.Analyzer.HistoryLimit,
	}, inj, sim, store, nil)
	anl.Start()
	defer anl.Close()

	orc := orchestrator.New(logger, orchestrator.Config{
		MaxConcurrentExperiments: cfg.Orchestrator.MaxConcurrentExperiments,
		MaxActiveFaults:          cfg.Orchestrator.MaxActiveFaults,
		ProtectedTargets:         cfg.Orchestrator.ProtectedTargets,
		HistoryLimit:             cfg.Orchestrator.HistoryLimit,
	}, inj, sim, store)
	defer orc.Close()

	chaosService := services.NewChaosService(logger, reg, inj, sim, anl, orc, store)
	catalog := chaosService.Catalog()
	logger.Info("fault catalog ready",
		slog.Int("fault_types", catalog.Total),
		slog.Int("enabled", catalog.Enabled),
	)

	server, err := api.NewServer(cfg.Server)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	server.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("mirador-chaos stopped")
}
