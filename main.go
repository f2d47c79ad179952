package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"PPRealtime/global/config"
	"PPRealtime/logger"
	"PPRealtime/tools"
	"PPRealtime/tools/ids"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", tools.GetEnv("RT_CONFIG", ""), "YAML config file; defaults and RT_* variables apply without it")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	log := logger.Init(cfg.Log)
	defer logger.Sync()
	ids.SetNodeID(cfg.NodeNum)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	a.run(gctx, g)
	log.Info("realtime node started", zap.String("node", cfg.NodeID), zap.String("addr", cfg.Server.Addr), zap.String("path", cfg.Realtime.Path))

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"realtime": func(ctx context.Context) error {
				log.Info("graceful shutdown initiated")
				cancel()
				return a.stop(ctx)
			},
		},
	)

	failed := make(chan error, 1)
	go func() { failed <- g.Wait() }()

	select {
	case code := <-wait:
		log.Info("exited", zap.Int("code", code))
		logger.Sync()
		os.Exit(code)
	case err := <-failed:
		log.Error("component stopped", zap.Error(err))
		cancel()
		sctx, scancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		_ = a.stop(sctx)
		scancel()
		logger.Sync()
		os.Exit(1)
	}
}
