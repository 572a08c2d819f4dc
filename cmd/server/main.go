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
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/AurifyAE/bullionpro-ledger/internal/fixing"
	"github.com/AurifyAE/bullionpro-ledger/internal/ident"
	"github.com/AurifyAE/bullionpro-ledger/internal/metrics"
	"github.com/AurifyAE/bullionpro-ledger/internal/report"
	"github.com/AurifyAE/bullionpro-ledger/internal/store"
)

func main() {
	godotenv.Load() // .env is optional; env vars win

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)

		pg := store.NewPostgresStore(pool)
		if err := pg.Migrate(context.Background()); err != nil {
			slog.Error("schema migration failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- ID generation ---
	ids := ident.NewProbeGenerator(st.FixingTransactionIDExists, 6, 5)

	// --- WebSocket hub ---
	wsHub := fixing.NewWSHub()
	go wsHub.Run()

	// --- Services ---
	opts := []fixing.Option{fixing.WithHub(wsHub)}
	if os.Getenv("FIXING_REVERSE_ON_CANCEL") == "true" {
		opts = append(opts, fixing.WithReverseOnCancel(true))
		slog.Info("cancel will reverse ledger postings")
	}
	fixingSvc := fixing.NewService(st, ids, opts...)
	reports := report.NewEngine(st)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Actor-ID"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"bullionpro-ledger"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time balance updates.
		r.Get("/ws", wsHub.HandleWS)

		// Fixing transaction lifecycle.
		r.Get("/fixings", fixingSvc.HandleList)
		r.Post("/fixings", fixingSvc.HandleCreate)
		r.Get("/fixings/{fixingID}", fixingSvc.HandleGet)
		r.Put("/fixings/{fixingID}", fixingSvc.HandleUpdate)
		r.Delete("/fixings/{fixingID}", fixingSvc.HandleDelete)
		r.Post("/fixings/{fixingID}/cancel", fixingSvc.HandleCancel)
		r.Post("/fixings/{fixingID}/restore", fixingSvc.HandleRestore)
		r.Delete("/fixings/{fixingID}/permanent", fixingSvc.HandlePermanentDelete)

		// Accounts and reports.
		r.Get("/accounts/{partyID}", fixingSvc.HandleGetAccount)
		r.Get("/accounts/{partyID}/statement", reports.HandleStatement)
		r.Get("/accounts/{partyID}/register", reports.HandleFixingRegister)
		r.Get("/accounts/{partyID}/stock", reports.HandleStockReport)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("bullionpro-ledger listening", "port", port)
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

	slog.Info("shutting down bullionpro-ledger...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("bullionpro-ledger stopped")
}
