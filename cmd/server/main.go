// Package main is the entry point for the wagerbot server: custodial wallets
// per external identifier plus the parimutuel betting ledger, exposed over
// HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/evetabi/wagerbot/internal/api"
	"github.com/evetabi/wagerbot/internal/chain"
	"github.com/evetabi/wagerbot/internal/config"
	"github.com/evetabi/wagerbot/internal/events"
	"github.com/evetabi/wagerbot/internal/metrics"
	"github.com/evetabi/wagerbot/internal/repository"
	"github.com/evetabi/wagerbot/internal/repository/memstore"
	"github.com/evetabi/wagerbot/internal/scheduler"
	"github.com/evetabi/wagerbot/internal/service"
	"github.com/evetabi/wagerbot/internal/telemetry"
	"github.com/evetabi/wagerbot/internal/ws"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting wagerbot server",
		"env", cfg.App.Env, "port", cfg.HTTP.Port, "store", cfg.Store.Driver, "chain_id", cfg.Custody.ChainID)

	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Tracing ────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, cfg.App.ServiceName, cfg.Observability.OTLPEndpoint)
	if err != nil {
		logger.Error("tracing setup failed", "err", err)
		os.Exit(1)
	}

	// ── 4. Store ──────────────────────────────────────────────────────────────
	store, storePing, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store setup failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}

	// ── 5. Metrics ────────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ── 6. Network ledger + custody ───────────────────────────────────────────
	ledgerClient, closeChain, err := chain.Dial(ctx, cfg.Custody.RPCURL, cfg.Custody.ChainID)
	if err != nil {
		logger.Error("network ledger dial failed", "err", err)
		os.Exit(1)
	}

	custody, err := service.OpenCustody(ctx, service.CustodyConfig{
		Passphrase: cfg.Custody.Passphrase.Reveal(),
		OpTimeout:  cfg.Custody.OpTimeout,
		CacheSize:  cfg.Custody.CacheSize,
		CacheTTL:   cfg.Custody.CacheTTL,
	}, service.CustodyDeps{
		Secrets: service.StaticSecret(cfg.Custody.MasterSecret.Reveal()),
		Ledger:  ledgerClient,
		Store:   store,
		Metrics: m,
		Logger:  logger,
	})
	if err != nil {
		// custody refuses to start without its secret or the chain
		logger.Error("custody unavailable", "err", err)
		os.Exit(1)
	}

	// ── 7. Event sinks + WebSocket hub ────────────────────────────────────────
	hub := ws.NewHub([]byte(cfg.Auth.JWTSecret.Reveal()), cfg.HTTP.AllowedOrigins, logger)
	go hub.Run(ctx)
	logger.Info("websocket hub started")

	var sinks events.Fanout
	var kafkaWriter interface{ Close() error }
	if cfg.Events.KafkaBrokers != "" {
		w := events.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		kafkaWriter = w
		sinks = append(sinks, events.NewKafkaPublisher(w))
		logger.Info("kafka event stream enabled", "topic", cfg.Events.KafkaTopic)
	}

	var redisClient *redis.Client
	if cfg.Events.RedisURL.IsSet() {
		opts, err := redis.ParseURL(cfg.Events.RedisURL.Reveal())
		if err != nil {
			logger.Error("invalid EVENTS_REDIS_URL", "err", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		// every instance, this one included, hears its events back through
		// the relay, so the hub is fed only from there
		sinks = append(sinks, events.NewRedisPublisher(redisClient, cfg.Events.RedisChannel))
		events.StartRedisRelay(ctx, redisClient, cfg.Events.RedisChannel, hub.Relay, logger)
		logger.Info("redis event relay enabled", "channel", cfg.Events.RedisChannel)
	} else {
		sinks = append(sinks, hub)
	}

	// ── 8. Services ───────────────────────────────────────────────────────────
	ledger := service.NewLedgerService(service.LedgerConfig{
		DefaultDuration: cfg.Ledger.DefaultDuration,
		PublishTimeout:  cfg.Ledger.PublishTimeout,
	}, service.LedgerDeps{
		Store:     store,
		Wallets:   custody,
		Publisher: sinks,
		Metrics:   m,
		Logger:    logger,
	})
	intents := service.NewIntentService(ledger, custody, m, logger)

	// ── 9. Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(ledger, cfg.Ledger.CloseInterval, logger)
	sched.Start(ctx)

	// ── 10. Metrics + health server ───────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Observability.MetricsPort != "" {
		metricsSrv = metrics.StartServer(cfg.Observability.MetricsPort, reg, func(ctx context.Context) error {
			if err := storePing(ctx); err != nil {
				return err
			}
			return ledgerClient.Probe(ctx)
		})
		logger.Info("metrics server listening", "port", cfg.Observability.MetricsPort)
	}

	// ── 11. HTTP Router ───────────────────────────────────────────────────────
	router := api.SetupRouter(ctx, api.RouterDeps{
		Ledger:  ledger,
		Custody: custody,
		Intents: intents,
		Hub:     hub,
		Cfg:     cfg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	// ── 12. Start server ──────────────────────────────────────────────────────
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
			stop() // trigger graceful shutdown
		}
	}()

	// ── 13. Graceful shutdown ─────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "err", err)
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown error", "err", err)
		}
	}
	sched.Wait()

	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close", "err", err)
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	closeChain()
	closeStore()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", "err", err)
	}
	logger.Info("server stopped cleanly")
}

// openStore builds the configured store. ping reports reachability for
// /healthz; closeFn releases the connection pool.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store service.Store, ping func(context.Context) error, closeFn func(), err error) {
	if cfg.Store.Driver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		noop := func(context.Context) error { return nil }
		return memstore.New(), noop, func() {}, nil
	}

	dsn := cfg.Store.DSN.Reveal()
	if cfg.Store.AutoMigrate {
		if err := repository.Migrate(cfg.Store.Driver, dsn, logger); err != nil {
			return nil, nil, nil, err
		}
	}
	db, err := repository.Open(ctx, cfg.Store.Driver, dsn, repository.Options{
		MaxOpenConns:    cfg.Store.MaxOpenConns,
		MaxIdleConns:    cfg.Store.MaxIdleConns,
		ConnMaxLifetime: cfg.Store.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("database connected", "driver", cfg.Store.Driver)
	return repository.NewSQLStore(db), db.PingContext, func() { _ = db.Close() }, nil
}
