package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/kmaox/auctionhouse/internal/api"
	"github.com/kmaox/auctionhouse/internal/config"
	"github.com/kmaox/auctionhouse/internal/engine"
	"github.com/kmaox/auctionhouse/internal/events"
	"github.com/kmaox/auctionhouse/internal/metrics"
	"github.com/kmaox/auctionhouse/internal/minter"
	"github.com/kmaox/auctionhouse/internal/model"
	"github.com/kmaox/auctionhouse/internal/oracle"
	"github.com/kmaox/auctionhouse/internal/settler"
	"github.com/kmaox/auctionhouse/internal/store"
	"github.com/kmaox/auctionhouse/internal/treasury"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if cfg.Database.PostgresURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.Database.PostgresURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("database.postgres_url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Price oracle ---
	var price oracle.PriceSource
	if cfg.Oracle.FeedURL != "" {
		price = oracle.NewFeedClient(cfg.Oracle.FeedURL, cfg.Oracle.Freshness)
		slog.Info("price feed configured", "url", cfg.Oracle.FeedURL)
	} else {
		static, err := decimal.NewFromString(cfg.Oracle.StaticPrice)
		if err != nil {
			slog.Error("invalid oracle.static_price", "err", err)
			os.Exit(1)
		}
		price = oracle.StaticSource{Price: static}
		slog.Warn("using static price", "price", static.String())
	}

	reserveUSD, err := decimal.NewFromString(cfg.Auction.ReserveUSD)
	if err != nil {
		slog.Error("invalid auction.reserve_usd", "err", err)
		os.Exit(1)
	}

	// --- Treasury ledger and unit minter ---
	ledger := treasury.NewLedger()
	mint := minter.New(minter.Config{
		Cadence:   cfg.Minter.Cadence,
		BonusCap:  cfg.Minter.BonusCap,
		MaxSupply: cfg.Minter.MaxSupply,
		Escrow:    cfg.Accounts.Escrow,
		Treasury:  cfg.Accounts.Treasury,
	}, st)

	// --- WebSocket hub ---
	hub := events.NewHub()
	go hub.Run()

	// --- Auction engine ---
	eng := engine.New(engine.Config{
		Duration:        cfg.Auction.Duration,
		TimeBuffer:      cfg.Auction.TimeBuffer,
		MinIncrementPct: cfg.Auction.MinIncrementPct,
		ReserveUSD:      reserveUSD,
		EligibilityMode: model.EligibilityMode(cfg.Auction.EligibilityMode),
		GenesisCutoff:   cfg.Auction.GenesisCutoff,
		PublicBidding:   cfg.Auction.PublicBidding,
		Escrow:          cfg.Accounts.Escrow,
		Treasury:        cfg.Accounts.Treasury,
	}, ledger, mint, price, st, hub)

	if err := mint.Restore(context.Background()); err != nil {
		slog.Error("minter restore failed", "err", err)
		os.Exit(1)
	}
	if err := eng.Restore(context.Background()); err != nil {
		slog.Error("restore failed", "err", err)
		os.Exit(1)
	}
	if cfg.Auction.AutoStart {
		admin := model.AuthContext{Account: "system", Admin: true}
		if err := eng.Unpause(context.Background(), admin); err != nil {
			slog.Error("auto-start failed", "err", err)
			os.Exit(1)
		}
	}

	// --- Settler keeper ---
	keeperCtx, keeperCancel := context.WithCancel(context.Background())
	defer keeperCancel()
	keeper := settler.New(keeperCtx, eng)
	if err := keeper.Register(cfg.Settler.Cron); err != nil {
		slog.Error("settler registration failed", "err", err)
		os.Exit(1)
	}
	keeper.Start()
	defer keeper.Stop()

	// --- HTTP router ---
	svc := api.NewService(eng, ledger, mint, st, hub, cfg.Server.AdminToken)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"auctionhouse"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Mount("/api/v1", svc.Routes())

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("auctionhouse listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down auctionhouse...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("auctionhouse stopped")
}
