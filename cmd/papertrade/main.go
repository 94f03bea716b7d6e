package main

import (
	"context"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ismaiel54/paper-trading-engine/internal/broker"
	"github.com/ismaiel54/paper-trading-engine/internal/chaos"
	"github.com/ismaiel54/paper-trading-engine/internal/config"
	"github.com/ismaiel54/paper-trading-engine/internal/engine"
	"github.com/ismaiel54/paper-trading-engine/internal/events"
	"github.com/ismaiel54/paper-trading-engine/internal/feed"
	"github.com/ismaiel54/paper-trading-engine/internal/guard"
	"github.com/ismaiel54/paper-trading-engine/internal/journal"
	"github.com/ismaiel54/paper-trading-engine/internal/logging"
	"github.com/ismaiel54/paper-trading-engine/internal/observability"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	cfg := config.LoadConfig("papertrade")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("starting paper trading engine",
		zap.String("symbol", cfg.Symbol),
		zap.Duration("tick_interval", cfg.TickInterval),
		zap.Float64("starting_balance", cfg.StartingBalance),
	)

	// Journal with outbox
	jnl, err := journal.Open(filepath.Join(cfg.DataDir, "journal.db"))
	if err != nil {
		logger.Fatal("failed to open journal", zap.Error(err))
	}
	defer jnl.Close()

	// Event sinks: always log and record metrics; Kafka is opt-in
	sinks := []events.Sink{
		events.NewLogSink(logger),
		events.NewPrometheusSink(),
	}
	if cfg.KafkaEnabled {
		kafkaSink, err := events.NewKafkaSink(cfg.Brokers(), cfg.ServiceName, logger)
		if err != nil {
			logger.Fatal("failed to create kafka sink", zap.Error(err))
		}
		sinks = append(sinks, kafkaSink)
	}
	sink := events.NewMultiSink(sinks...)
	defer sink.Close()

	// Chaos injection (disabled unless CHAOS_ENABLED=true)
	chaosCfg := chaos.LoadConfig()
	injector := chaos.New(chaosCfg, logger)

	// Simulated broker
	sim := broker.NewSimulatedBroker(
		broker.SimConfig{
			StartingBalance: cfg.StartingBalance,
			CommissionRate:  cfg.CommissionRate,
			SlippageRate:    cfg.SlippageRate,
		},
		broker.ConnConfig{
			Name:               "simulated",
			MaxRetries:         cfg.MaxRetries,
			RetryDelay:         cfg.RetryDelay,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
		},
		injector,
		logger,
	)

	// Execution guard
	g, err := guard.New(guard.Config{
		MaxDailyLossDollars:         cfg.MaxDailyLossDollars,
		MaxDailyLossPercent:         cfg.MaxDailyLossPercent,
		MaxPositionPerSymbolDollars: cfg.MaxPositionPerSymbolDollars,
		MaxPositionPerSymbolPercent: cfg.MaxPositionPerSymbolPercent,
		MaxConsecutiveLosses:        cfg.MaxConsecutiveLosses,
		LossLookback:                24 * time.Hour,
		MaxSlippageBps:              cfg.MaxSlippageBps,
		SlippageViolationThreshold:  cfg.SlippageViolationThreshold,
		MaxOrdersPerMinute:          cfg.MaxOrdersPerMinute,
		MaxOrdersPerHour:            cfg.MaxOrdersPerHour,
		MaxLatencyMs:                cfg.MaxLatencyMs,
		DefaultHaltDuration:         cfg.HaltDuration,
		AutoResume:                  cfg.AutoResume,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create guard", zap.Error(err))
	}

	strategy, err := engine.NewSMACross(cfg.FastPeriod, cfg.SlowPeriod)
	if err != nil {
		logger.Fatal("failed to create strategy", zap.Error(err))
	}

	loop, err := engine.New(engine.Config{
		Symbol:        cfg.Symbol,
		TickInterval:  cfg.TickInterval,
		OrderQuantity: cfg.OrderQuantity,
		MinBars:       cfg.MinBars,
	}, sim, g, strategy, sink, jnl, logger)
	if err != nil {
		logger.Fatal("failed to create trading loop", zap.Error(err))
	}

	// Health checks over gRPC and HTTP
	healthChecker := observability.NewHealthChecker(sim, g, logger)
	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Outbox publisher drains the journal to the sinks
	publisherErrCh := make(chan error, 1)
	publisher := journal.NewPublisher(jnl, sink, logger)
	go func() {
		if err := publisher.Run(runCtx); err != nil && runCtx.Err() == nil {
			publisherErrCh <- err
		}
	}()

	// Price source: websocket feed when configured, synthetic walk otherwise
	if cfg.FeedURL != "" {
		wsFeed := feed.NewWSFeed(cfg.FeedURL, []string{cfg.Symbol}, func(tick feed.Tick) {
			sim.PushTick(tick.Symbol, tick.Price)
		}, logger)
		go func() {
			if err := wsFeed.Run(runCtx); err != nil && runCtx.Err() == nil {
				logger.Error("feed stopped", zap.Error(err))
			}
		}()
	} else {
		go syntheticTicks(runCtx, sim, cfg.Symbol, cfg.TickInterval)
	}

	loopErrCh := make(chan error, 1)
	go func() {
		if err := loop.Run(runCtx); err != nil && runCtx.Err() == nil {
			loopErrCh <- err
		}
	}()

	// Mark ready once the loop is up
	go func() {
		time.Sleep(time.Second)
		if loop.IsRunning() {
			healthChecker.SetReady(true)
		} else {
			logger.Warn("trading loop not running yet")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	case err := <-loopErrCh:
		logger.Error("trading loop error", zap.Error(err))
	case err := <-publisherErrCh:
		logger.Error("outbox publisher error", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")

	cancel()
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown failed", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("shutdown complete")
}

// syntheticTicks drives the simulation with a bounded random walk so the
// engine can run without an external feed
func syntheticTicks(ctx context.Context, sim *broker.SimulatedBroker, symbol string, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	price := 100.0

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price *= 1 + rng.NormFloat64()*0.001
			if price < 1 {
				price = 1
			}
			sim.PushTick(symbol, price)
		}
	}
}
