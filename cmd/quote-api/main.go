// README: Entry point; loads config, wires services, starts HTTP server and background consumers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cargoquote/internal/ai"
	"cargoquote/internal/config"
	"cargoquote/internal/events"
	httptransport "cargoquote/internal/http"
	"cargoquote/internal/infra"
	applog "cargoquote/internal/log"
	"cargoquote/internal/maps"
	"cargoquote/internal/modules/distance"
	"cargoquote/internal/modules/history"
	"cargoquote/internal/modules/pricing"
	"cargoquote/internal/modules/quotecache"
	"cargoquote/internal/modules/routing"
	"cargoquote/internal/storage"
)

const compactInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := applog.Init(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	quoteBackend, routeBackend, err := openCache(ctx, cfg.Cache, g)
	if err != nil {
		return err
	}

	advisor, closeAdvisor, err := ai.NewProvider(ctx, advisoryProvider(cfg.Advisory))
	if err != nil {
		return err
	}
	defer closeAdvisor()
	advisory := ai.NewClient(advisor, ai.ClientConfig{
		Timeout: cfg.Advisory.Timeout,
		Breaker: ai.BreakerConfig{MaxFailures: cfg.Advisory.BreakerFailures, Cooldown: cfg.Advisory.BreakerCooldown},
	}, logger)

	loc := cfg.Location()
	recorder := history.NewRecorder(store, history.Config{MaxRecords: cfg.History.MaxRecords, Location: loc}, logger)
	distances := distance.Default()

	rates := pricing.DefaultRates()
	rates.RatePerKm = cfg.Pricing.RatePerKm
	rates.MinimumPrice = cfg.Pricing.MinimumPrice
	rates.Location = loc

	pricingStore := pricing.NewStore(store, logger)
	forecaster := pricing.NewHistoryForecaster(recorder, cfg.History.DemandWindow, cfg.History.DemandMinSamples)

	var publisher pricing.QuotePublisher = events.NoopPublisher{}
	kafkaCfg := infra.NewKafkaConfig(cfg.Kafka.ClientID)
	if cfg.Kafka.Enabled {
		producer, err := infra.NewKafkaProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			return err
		}
		kp := events.NewKafkaPublisher(producer, cfg.Kafka.QuoteTopic, logger)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	pricingSvc := pricing.NewService(pricing.Deps{
		Rates:          rates,
		Distances:      distances,
		Factors:        pricing.NewFactorAggregator(forecaster, pricingStore, rates, logger),
		Advisor:        advisory,
		Cache:          quotecache.New[pricing.QuoteResult]("quotes", quoteBackend, logger),
		CacheTTL:       cfg.Cache.QuoteTTL,
		History:        recorder,
		Store:          pricingStore,
		Publisher:      publisher,
		PublishTimeout: cfg.Kafka.PublishTimeout,
		Concurrency:    cfg.Pricing.BatchConcurrency,
		Logger:         logger,
	})
	// Runs before the producer is closed.
	defer pricingSvc.Drain()

	routeRates := routing.DefaultRates()
	routeRates.Location = loc
	var traffic routing.TrafficProvider
	if cfg.Maps.APIKey != "" {
		ts, err := maps.NewTrafficService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		traffic = ts
	}
	routingSvc := routing.NewService(routing.Deps{
		Rates:            routeRates,
		Distances:        distances,
		Advisor:          advisory,
		Traffic:          traffic,
		Cache:            quotecache.New[routing.RoutePlan]("routes", routeBackend, logger),
		CacheTTL:         cfg.Cache.RouteTTL,
		History:          recorder,
		BatchConcurrency: cfg.Routing.BatchConcurrency,
		Logger:           logger,
	})

	if cfg.Kafka.Enabled {
		group, err := infra.NewKafkaConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, kafkaCfg)
		if err != nil {
			return err
		}
		consumer := events.NewAcceptanceConsumer(recorder, logger)
		g.Go(func() error {
			defer func() { _ = group.Close() }()
			return events.Run(ctx, group, []string{cfg.Kafka.AcceptanceTopic}, consumer, logger)
		})
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Quotes:      pricingSvc,
		Market:      pricingSvc,
		Routes:      routingSvc,
		Acceptor:    recorder,
		RouteLog:    recorder,
		Analytics:   recorder,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger,
	})
	server := httptransport.NewServer(httptransport.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, router, logger)
	g.Go(func() error { return server.Run(ctx) })

	logger.Info("quote engine started",
		zap.String("store", cfg.Store.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("advisor", cfg.Advisory.Provider),
		zap.Bool("kafka", cfg.Kafka.Enabled))
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (storage.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := infra.NewDB(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		s := storage.NewPostgresStore(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool.Close, nil
	case "sqlite":
		db, err := infra.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s, err := storage.NewSQLiteStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, func() { _ = db.Close() }, nil
	default:
		return storage.NewMemoryStore(), func() {}, nil
	}
}

// openCache returns the quote and route backends. The memory backend is shared and
// compacted in the background until ctx ends.
func openCache(ctx context.Context, cfg config.CacheConfig, g *errgroup.Group) (quotecache.Backend, quotecache.Backend, error) {
	if cfg.Backend == "redis" {
		client, err := infra.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		g.Go(func() error {
			<-ctx.Done()
			return client.Close()
		})
		return quotecache.NewRedisBackend(client, cfg.Prefix+"quote:"),
			quotecache.NewRedisBackend(client, cfg.Prefix+"route:"), nil
	}
	mem := quotecache.NewMemoryBackend(time.Now)
	g.Go(func() error {
		mem.RunCompactor(ctx, compactInterval)
		return nil
	})
	return mem, mem, nil
}

func advisoryProvider(cfg config.AdvisoryConfig) ai.ProviderConfig {
	return ai.ProviderConfig{
		Name:      cfg.Provider,
		GeminiKey: cfg.GeminiKey,
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Endpoint:  cfg.Endpoint,
	}
}
