package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/aquacalc/ph-adjuster/internal/dose"
	"github.com/aquacalc/ph-adjuster/internal/dosing"
	"github.com/aquacalc/ph-adjuster/internal/events"
	"github.com/aquacalc/ph-adjuster/internal/metrics"
	"github.com/aquacalc/ph-adjuster/internal/safety"
	"github.com/aquacalc/ph-adjuster/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	switch dbURL, sqlitePath := os.Getenv("DATABASE_URL"), os.Getenv("SQLITE_PATH"); {
	case dbURL != "":
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			slog.Error("database schema setup failed", "err", err)
			os.Exit(1)
		}
		st = pg
		slog.Info("connected to PostgreSQL")

	case sqlitePath != "":
		lite, err := store.NewSQLiteStore(sqlitePath)
		if err != nil {
			slog.Error("sqlite open failed", "path", sqlitePath, "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, func() { lite.Close() })
		st = lite
		slog.Info("using SQLite store", "path", lite.Path())

	default:
		slog.Warn("DATABASE_URL and SQLITE_PATH not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	// Wrap with Redis read-through cache if configured.
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		ttl := envDuration("CACHE_TTL", 30*time.Second)
		rdb := redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, ttl)
		slog.Info("Redis cache enabled", "ttl", ttl.String())
	}

	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Safety ceilings ---
	limiter, err := safety.NewLimiter(
		envFloat("ACID_CEILING_OZ", safety.DefaultLiquidCeilingOz),
		envFloat("SOLID_CEILING_OZ", safety.DefaultSolidCeilingOz),
	)
	if err != nil {
		slog.Error("invalid dose ceiling", "err", err)
		os.Exit(1)
	}
	engine := dosing.NewEngine(limiter)
	slog.Info("dose ceilings",
		"liquid_oz_per_10k_gal", limiter.LiquidCeilingOz,
		"solid_oz_per_10k_gal", limiter.SolidCeilingOz,
	)

	// --- Event publishers ---
	feed := dose.NewFeedHub()
	go feed.Run()

	publishers := events.MultiPublisher{feed}
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		np, err := events.NewNATSPublisher(events.DefaultConfig(natsURL))
		if err != nil {
			slog.Error("nats connection failed", "err", err)
			os.Exit(1)
		}
		publishers = append(publishers, np)
		slog.Info("publishing dose events to NATS", "subject", events.SubjectPrefix+".*")
	}
	cleanup = append(cleanup, publishers.Close)

	// --- Dose service ---
	doseSvc := dose.NewService(engine, st, publishers)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"ph-adjuster"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoints are long-lived and sit outside the timeout.
		r.Get("/dose/live", doseSvc.HandleLive)
		r.Get("/feed", feed.HandleFeed)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/chemicals", doseSvc.ListChemicals)
			r.Post("/dose", doseSvc.ComputeDose)

			// Saved pools.
			r.Get("/pools", doseSvc.ListPools)
			r.Post("/pools", doseSvc.CreatePool)
			r.Get("/pools/{poolID}", doseSvc.GetPool)
			r.Post("/pools/{poolID}/dose", doseSvc.ComputePoolDose)
			r.Get("/pools/{poolID}/history", doseSvc.GetPoolHistory)

			// Calculation log.
			r.Get("/calculations/{calcID}", doseSvc.GetCalculation)
		})
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
		slog.Info("ph-adjuster listening", "port", port)
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

	slog.Info("shutting down ph-adjuster...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("ph-adjuster stopped")
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("ignoring invalid number", "key", key, "value", v)
		return fallback
	}
	return f
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
		return fallback
	}
	return d
}
