package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mdcollector/internal/application/persist"
	"mdcollector/internal/application/port"
	"mdcollector/internal/application/subscription"
	rediscache "mdcollector/internal/infrastructure/cache/redis"
	"mdcollector/internal/infrastructure/config"
	"mdcollector/internal/infrastructure/exchange/bybit"
	"mdcollector/internal/infrastructure/logger"
	"mdcollector/internal/infrastructure/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Setup("info")
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := sqlite.NewStores(
		cfg.Storage.Dir,
		sqlite.WithRetention(time.Duration(cfg.Storage.RetentionDays)*24*time.Hour),
	)
	defer func() {
		if err := stores.Close(); err != nil {
			log.Error().Err(err).Msg("closing stores failed")
		}
	}()

	var cache port.LatestCache
	if cfg.Cache.Enabled {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.Cache.Addr})
		defer rdb.Close()
		cache = rediscache.New(rdb, cfg.Cache.Prefix, time.Duration(cfg.Cache.TTLSec)*time.Second)
		log.Info().Str("addr", cfg.Cache.Addr).Msg("latest-price cache enabled")
	}

	exchange := bybit.New(cfg.Exchange.WsURL, cfg.Exchange.RestURL)
	exchange.Start(ctx)

	queues := subscription.NewQueues(cfg.Queues.Capacity, cfg.Queues.FundingCapacity)
	manager := subscription.NewManager(exchange, cfg, queues)

	// The persister runs on its own lifetime: producers stop on the signal
	// ctx first, then Stop drains what the workers already queued.
	persister := persist.New(queues, stores, cache)
	persister.Start(context.Background())

	if err := manager.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start subscriptions failed")
	}

	log.Info().
		Str("config", *configPath).
		Int("symbols", len(cfg.Symbols.List)).
		Int("workers", manager.ActiveWorkers()).
		Str("storage", cfg.Storage.Dir).
		Msg("collector started")

	depthTicker := time.NewTicker(30 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			manager.Stop()
			persister.Stop()
			log.Info().
				Uint64("fetch_failures", manager.FailureCount()).
				Uint64("write_errors", persister.WriteErrorCount()).
				Msg("collector stopped")
			return
		case <-depthTicker.C:
			log.Debug().
				Interface("depths", manager.QueueDepths()).
				Uint64("fetch_failures", manager.FailureCount()).
				Msg("queue depths")
		}
	}
}
