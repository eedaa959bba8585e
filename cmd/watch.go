package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hlswatch/cache"
	"hlswatch/config"
	"hlswatch/core/discovery"
	"hlswatch/core/dispatch"
	"hlswatch/core/monitor"
	"hlswatch/core/registry"
	"hlswatch/logger"
	"hlswatch/metrics"
	"hlswatch/server"
	"hlswatch/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// runWatch wires the pipeline and blocks until SIGINT/SIGTERM. Startup failures are
// returned; after startup the only exit is a graceful or forced stop.
func runWatch(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(promReg)

	sinks := dispatch.MultiSink{dispatch.LogSink{}}

	if cfg.RedisEnabled {
		client, err := cache.ConnectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		sinks = append(sinks, cache.NewRedisSink(client, cfg.RedisHistory, cfg.RedisTTL))
		logger.Info("recording segments in redis", logger.String("addr", cfg.RedisHost+":"+cfg.RedisPort))
	}

	if cfg.MinioEnabled() {
		client, err := storage.InitMinio(ctx, cfg)
		if err != nil {
			return err
		}
		sinks = append(sinks, storage.NewArchiver(client, cfg.MinioBucket, cfg.WatchRoot))
	}

	sup := registry.NewSupervisor(registry.New(), cfg.MaxMonitors)

	var status *server.Server
	if cfg.StatusListen != "" {
		hub := server.NewHub()
		go hub.Run()
		defer hub.Stop()
		sinks = append(sinks, hub)

		status = server.New(sup.Registry(), hub, promReg)
		if err := status.Listen(cfg.StatusListen); err != nil {
			return err
		}
	}

	run := monitor.Runner(monitor.Options{
		QueueSize: cfg.QueueSize,
		Fetcher:   dispatch.DelayFetcher{Min: cfg.FetchDelayMin, Max: cfg.FetchDelayMax},
		Sink:      sinks,
	})
	watcher, err := discovery.New(cfg.WatchRoot, sup, run, discovery.Options{
		Pattern:      cfg.PlaylistPattern,
		ScanExisting: cfg.ScanExisting,
	})
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	defer close(finished)
	go forceExitAfter(ctx, finished, cfg.ShutdownGrace, sup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watcher.Run(gctx)
	})
	if status != nil {
		g.Go(func() error {
			return status.Serve(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("hlswatch stopped: %w", err)
	}
	logger.Info("hlswatch stopped")
	return nil
}

// forceExitAfter kills the process when draining outlives grace after a stop signal.
func forceExitAfter(ctx context.Context, finished <-chan struct{}, grace time.Duration, sup *registry.Supervisor) {
	select {
	case <-finished:
		return
	case <-ctx.Done():
	}
	logger.Info("shutdown requested, draining monitors",
		logger.Int("active", sup.Registry().Len()),
		logger.Duration("grace", grace))

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-finished:
	case <-timer.C:
		logger.Error("shutdown grace period exceeded, forcing exit",
			logger.Int("active", sup.Registry().Len()))
		logger.Sync()
		os.Exit(1)
	}
}
