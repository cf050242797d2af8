// Package main implements the gateway server entry point: wire up the
// database, Redis, and outbound HTTP clients, mount the relay routes on
// one gin engine, run the video poller on a ticker, and
// shut down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	_ "github.com/joho/godotenv/autoload"

	"github.com/nexusgate/llmgateway/common"
	"github.com/nexusgate/llmgateway/common/client"
	"github.com/nexusgate/llmgateway/common/config"
	"github.com/nexusgate/llmgateway/common/telemetry"
	"github.com/nexusgate/llmgateway/controller/gateway"
	"github.com/nexusgate/llmgateway/internal/store"
	"github.com/nexusgate/llmgateway/router"
)

func main() {
	logger, err := glog.NewConsoleWithName("llmgateway", glog.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %+v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("gateway exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	db, err := store.Open(config.SQLDSN)
	if err != nil {
		return err
	}
	if err := store.Init(db); err != nil {
		return err
	}

	if err := common.InitRedisClient(); err != nil {
		return err
	}
	client.Init()

	otelProviders, err := telemetry.InitOpenTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Error("OpenTelemetry shutdown failed", zap.Error(err))
		}
	}()

	deps := gateway.NewDeps(db)

	engine := gin.New()
	engine.Use(gin.Recovery())
	router.SetRelayRouter(engine, deps)

	server := &http.Server{Addr: config.ServerAddress, Handler: engine}

	go runPoller(ctx, logger, deps)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", zap.String("addr", config.ServerAddress))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runPoller drives internal/video.Poller.Tick on a fixed interval until
// ctx is cancelled, per spec.md §4.7's background polling loop.
func runPoller(ctx context.Context, logger *zap.Logger, deps *gateway.Deps) {
	interval := time.Duration(config.VideoPollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	poller := deps.NewPoller(config.VideoPollBatchSize, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := poller.Tick(ctx); err != nil {
				logger.Error("video poll tick failed", zap.Error(err))
			}
		}
	}
}
