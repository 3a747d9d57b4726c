package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pasale/pasale-api/internal/config"
	"github.com/pasale/pasale-api/internal/domain/fraud"
	"github.com/pasale/pasale-api/internal/domain/inventory"
	"github.com/pasale/pasale-api/internal/domain/orchestrator"
	"github.com/pasale/pasale-api/internal/domain/reward"
	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/middleware"
	"github.com/pasale/pasale-api/internal/pkg/database"
	"github.com/pasale/pasale-api/internal/pkg/jwt"
	"github.com/pasale/pasale-api/internal/pkg/lock"
	"github.com/pasale/pasale-api/internal/pkg/logger"
	pkgresponse "github.com/pasale/pasale-api/internal/pkg/response"
	"github.com/pasale/pasale-api/internal/pkg/telemetry"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Pretty: cfg.IsDevelopment(), LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Msg("Starting Pasale API")

	shutdownTracing, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	var db *sqlx.DB
	if cfg.StoreDriver == config.StoreDriverPostgres {
		db, err = database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer database.ClosePostgres(db)
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	locker := database.NewLocker(rdb, cfg.LockTTL, cfg.LockWait)

	var cache fraud.ScoreCache
	if rdb != nil {
		cache = fraud.NewRedisScoreCache(rdb, cfg.ScoreCacheTTL)
	}

	app := newServices(cfg.Rules, newStores(db, locker), locker, cache)
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newRouter(cfg, app, jwtService, healthHandler(db, rdb)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTracing(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to flush traces")
	}

	log.Info().Msg("Server exited properly")
}

// stores holds one backend per ledger. A nil db selects the in-memory stores.
type stores struct {
	transactions transaction.Repository
	catalog      inventory.ProductCatalog
	inventory    inventory.Repository
	rewards      reward.Repository
	fraud        fraud.Repository
}

func newStores(db *sqlx.DB, locker lock.Locker) stores {
	if db == nil {
		log.Warn().Msg("Using in-memory stores, data is lost on restart")
		return stores{
			transactions: transaction.NewMemoryRepository(),
			catalog:      inventory.NewMemoryCatalog(),
			inventory:    inventory.NewMemoryRepository(locker),
			rewards:      reward.NewMemoryRepository(locker),
			fraud:        fraud.NewMemoryRepository(),
		}
	}
	return stores{
		transactions: transaction.NewRepository(db),
		catalog:      inventory.NewCatalog(db),
		inventory:    inventory.NewRepository(db),
		rewards:      reward.NewRepository(db),
		fraud:        fraud.NewRepository(db),
	}
}

type services struct {
	transactions *transaction.Service
	inventory    *inventory.Service
	reward       *reward.Service
	fraud        *fraud.Service
}

func newServices(rules config.Rules, st stores, locker lock.TryLocker, cache fraud.ScoreCache) *services {
	inventoryService := inventory.NewService(st.inventory, st.catalog, rules)
	rewardService := reward.NewService(st.rewards, st.transactions, nil, rules)
	fraudService := fraud.NewService(st.fraud, fraud.NewDetector(rules, st.transactions, inventoryService), locker, rules).
		WithCache(cache)

	effects := orchestrator.New(fraudService, inventoryService, rewardService)
	return &services{
		transactions: transaction.NewService(st.transactions, effects),
		inventory:    inventoryService,
		reward:       rewardService,
		fraud:        fraudService,
	}
}

func healthHandler(db *sqlx.DB, rdb *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, healthy := database.Health(r.Context(), db, rdb)
		status["status"] = "ok"
		status["version"] = version
		if !healthy {
			status["status"] = "degraded"
			pkgresponse.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		pkgresponse.OK(w, status)
	}
}

func newRouter(cfg *config.Config, s *services, jwtService *jwt.Service, health http.HandlerFunc) http.Handler {
	authMiddleware := middleware.Auth(jwtService)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))
	r.Use(chimw.Compress(5))

	r.Get("/health", health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/transactions", transaction.NewHandler(s.transactions).Routes(authMiddleware))
		r.Mount("/inventory", inventory.NewHandler(s.inventory).Routes(authMiddleware))
		r.Mount("/rewards", reward.NewHandler(s.reward).Routes(authMiddleware))
		r.Mount("/fraud", fraud.NewHandler(s.fraud).Routes(authMiddleware))
	})

	return r
}
