package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"TrancheVault/internal/config"
	"TrancheVault/internal/event"
	"TrancheVault/internal/ingestion"
	"TrancheVault/internal/kernel"
	"TrancheVault/internal/observability"
	"TrancheVault/internal/persistence"
	"TrancheVault/internal/server"
)

func main() {
	log := observability.NewLogger("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	log.Info().Int("markets", len(cfg.Markets)).Msg("tranchevault starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	migrator := persistence.NewMigrator(db, cfg.Database.MigrationsDir, observability.NewLogger("migrate"))
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	store := persistence.NewStore(db)

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker()

	// --- Channels ---
	// The persist channel blocks on overflow so market mutations cannot
	// outrun the database; the publish channel drops instead.
	persistChan := make(chan kernel.Update, cfg.Channels.PersistChanSize)
	publishChan := make(chan kernel.Update, cfg.Channels.PublishChanSize)
	rawChan := make(chan ingestion.RawEvent, cfg.Channels.RawChanSize)
	injectChan := make(chan event.Event, cfg.Channels.InjectChanSize)

	emit := func(u kernel.Update) {
		select {
		case persistChan <- u:
		default:
			metrics.PersistBackpressure.Inc()
			persistChan <- u
		}
	}

	// --- Kernel and markets ---
	k := kernel.New(observability.NewLogger("kernel"))
	for _, mc := range cfg.Markets {
		m, err := buildMarket(ctx, mc, store, metrics, emit)
		if err != nil {
			log.Fatal().Err(err).Str("market_id", mc.MarketID).Msg("build market")
		}
		if err := k.AddMarket(m); err != nil {
			log.Fatal().Err(err).Str("market_id", mc.MarketID).Msg("register market")
		}
	}

	errChan := make(chan error, 8)

	// --- Persistence worker ---
	worker := persistence.NewWorker(db, persistChan, publishChan,
		cfg.Persistence.BatchSize, cfg.Persistence.FlushTimeout,
		observability.NewLogger("persistence"), metrics)
	go func() {
		errChan <- worker.Run(ctx)
	}()

	// --- NATS ---
	var subscriber *ingestion.NATSSubscriber
	if cfg.NATS.Enabled {
		nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, observability.NewLogger("nats"))
		if err != nil {
			log.Fatal().Err(err).Msg("nats connect")
		}
		defer nc.Close()

		if err := ingestion.EnsureStreams(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("ensure inbound streams")
		}
		if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
			log.Fatal().Err(err).Msg("ensure outbound stream")
		}

		subscriber = ingestion.NewNATSSubscriber(js, rawChan, observability.NewLogger("nats-sub"))
		if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
			log.Fatal().Err(err).Msg("nats subscribe")
		}

		publisher := ingestion.NewOutboundPublisher(js, publishChan, observability.NewLogger("publisher"))
		go func() {
			errChan <- publisher.Run(ctx)
		}()
	} else {
		log.Warn().Msg("nats disabled, draining publish channel")
		go drainUpdates(ctx, publishChan)
	}

	// --- Ingestion shell ---
	injector := ingestion.NewInjector(injectChan)
	processor := ingestion.NewProcessor(k, rawChan, injectChan, ingestion.DefaultSubjects(),
		observability.NewLogger("processor"), metrics)
	processor.SetConfigStore(store)
	go func() {
		errChan <- processor.Run(ctx)
	}()

	// --- Periodic sync ---
	go runPeriodicSync(ctx, k, cfg.Persistence.SyncInterval)

	// --- Channel depth gauges ---
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.SetChannelMetrics("persist", len(persistChan), cap(persistChan))
				metrics.SetChannelMetrics("publish", len(publishChan), cap(publishChan))
				metrics.SetChannelMetrics("raw", len(rawChan), cap(rawChan))
				metrics.SetChannelMetrics("inject", len(injectChan), cap(injectChan))
			}
		}
	}()

	// --- HTTP API ---
	handler := server.NewHandler(k, injector, observability.NewLogger("http"))
	router := server.NewRouter(handler, health, metrics, observability.NewLogger("http"))
	httpSrv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// --- Metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.Server.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	health.SetReady(true)
	log.Info().
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Bool("nats", cfg.NATS.Enabled).
		Msg("tranchevault ready")

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		log.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if subscriber != nil {
		subscriber.Stop()
	}

	// Cancelling the root context triggers the worker's final flush.
	cancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info().Msg("tranchevault shutdown complete")
}

// buildMarket constructs one market from its declaration and loads any
// persisted state before it joins the kernel.
func buildMarket(
	ctx context.Context,
	mc config.MarketConfig,
	store *persistence.Store,
	metrics *observability.Metrics,
	emit func(kernel.Update),
) (*kernel.Market, error) {
	model, err := mc.Model()
	if err != nil {
		return nil, err
	}
	seniorVenue, err := mc.SeniorVenue.Build()
	if err != nil {
		return nil, err
	}
	juniorVenue, err := mc.JuniorVenue.Build()
	if err != nil {
		return nil, err
	}

	m, err := kernel.NewMarket(mc.Accounting(), model, seniorVenue, juniorVenue,
		kernel.WithLogger(observability.NewLogger("market").With().Str("market_id", mc.MarketID).Logger()),
		kernel.WithMetrics(metrics),
		kernel.WithEmit(emit),
	)
	if err != nil {
		return nil, err
	}

	rec, err := store.RecoverMarket(ctx, mc.MarketID)
	if err != nil {
		return nil, fmt.Errorf("recover %s: %w", mc.MarketID, err)
	}
	if rec.HasLedger {
		if err := m.Restore(rec.Ledger, rec.Venues, rec.Balances, rec.Requests, rec.LastRequestID); err != nil {
			return nil, fmt.Errorf("restore %s: %w", mc.MarketID, err)
		}
	}

	if err := store.UpsertMarket(ctx, mc.Accounting()); err != nil {
		return nil, fmt.Errorf("upsert market %s: %w", mc.MarketID, err)
	}
	return m, nil
}

// runPeriodicSync runs the waterfall for every market on a fixed cadence
// so prices drift no further than the interval between venue marks.
func runPeriodicSync(ctx context.Context, k *kernel.Kernel, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.SyncAll()
		}
	}
}

func drainUpdates(ctx context.Context, ch <-chan kernel.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
		}
	}
}
