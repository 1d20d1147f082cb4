package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/agoradata/agora/internal/api/handlers"
	mw "github.com/agoradata/agora/internal/api/middleware"
	"github.com/agoradata/agora/internal/buildconfig"
	"github.com/agoradata/agora/internal/config"
	"github.com/agoradata/agora/internal/domain"
	"github.com/agoradata/agora/internal/market"
	"github.com/agoradata/agora/internal/payment"
	"github.com/agoradata/agora/internal/service"
	"github.com/agoradata/agora/internal/store"
	"github.com/agoradata/agora/internal/wallet"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the router and background components for lifecycle management.
type App struct {
	Router    *chi.Mux
	Scheduler *service.Scheduler
	Cache     *payment.MemoryCache // nil when the Redis cache is active

	startTime      time.Time
	requestCount   atomic.Int64
	errorCount     atomic.Int64
	challengeCount atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	ownerStore := store.NewOwnerStore(db)
	agentStore := store.NewBuyerAgentStore(db)
	catalogStore := store.NewCatalogStore(db)
	actionStore := store.NewActionStore(db)
	walletStore := store.NewWalletStore(db)

	// Payment plumbing
	var cache payment.ChallengeCache
	var memCache *payment.MemoryCache
	if redisURL := config.RedisURL(); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		cache = payment.NewRedisCache(redis.NewClient(opts))
		logger.Info("using shared challenge cache", zap.String("redis", opts.Addr))
	} else {
		memCache = payment.NewMemoryCache(logger)
		cache = memCache
	}

	facilitator := payment.NewHTTPFacilitator(config.FacilitatorURL(), logger)
	gateway := payment.NewGateway(catalogStore, actionStore, cache, facilitator,
		config.FacilitatorURL(), config.PaymentNetwork(), logger)

	// Services
	walletSvc := wallet.NewService(walletStore, config.WalletFaucetAmount(), logger)
	actionSvc := service.NewActionService(actionStore, logger)
	marketClient := market.NewClient(config.MarketBaseURL(), walletSvc, logger)
	cycleSvc := service.NewCycleService(agentStore, marketClient, actionSvc, walletSvc, logger)
	scheduler := service.NewScheduler(cycleSvc, agentStore, walletSvc, actionSvc, logger)
	scheduler.SetInterval(config.CycleInterval())
	agentSvc := service.NewAgentService(agentStore, walletSvc, scheduler, logger)

	// Handlers
	ownerHandler := handlers.NewOwnerHandler(ownerStore)
	agentHandler := handlers.NewAgentHandler(agentSvc)
	datasetHandler := handlers.NewDatasetHandler(catalogStore, gateway, logger)
	actionHandler := handlers.NewActionHandler(actionSvc, agentSvc)
	feedHandler := handlers.NewFeedHandler(ownerStore, agentSvc, actionSvc, logger)
	walletHandler := handlers.NewWalletHandler(walletSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Scheduler: scheduler,
		Cache:     memCache,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount, &app.challengeCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health (no auth)
	r.Get("/health", healthHandler(db))

	// Metrics (no auth)
	r.Get("/metrics", app.metricsHandler())

	// Owner creation (no auth — bootstrap endpoint)
	r.Post("/v1/owners", ownerHandler.Create)

	// Marketplace read surface and the x402-guarded data endpoint. Access here
	// is controlled by payment, not identity.
	r.Route("/v1/datasets", func(r chi.Router) {
		r.Get("/", datasetHandler.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", datasetHandler.GetByID)
			r.Get("/sample", datasetHandler.Sample)
			r.Post("/records", datasetHandler.Records)
		})
	})

	// The live feed does its own token handling (header or query parameter).
	r.Get("/v1/agents/{id}/feed", feedHandler.Stream)

	// Authenticated routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(ownerStore))

		r.Get("/wallet", walletHandler.Get)

		r.Route("/agents", func(r chi.Router) {
			r.Post("/", agentHandler.Create)
			r.Get("/", agentHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", agentHandler.GetByID)
				r.Delete("/", agentHandler.Delete)
				r.Post("/start", agentHandler.Start)
				r.Post("/pause", agentHandler.Pause)
				r.Post("/resume", agentHandler.Resume)
				r.Get("/actions", actionHandler.List)
				r.Get("/datasets/{datasetID}/history", actionHandler.DatasetHistory)
			})
		})

		r.Get("/sellers/{id}/stats", actionHandler.SellerStats)
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"version":         buildconfig.Version(),
			"commit":          buildconfig.Commit(),
			"uptime_seconds":  uptime.Seconds(),
			"uptime_human":    uptime.Round(time.Second).String(),
			"request_count":   app.requestCount.Load(),
			"error_count":     app.errorCount.Load(),
			"challenge_count": app.challengeCount.Load(),
			"goroutines":      runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.OwnerStore      = (*store.OwnerStore)(nil)
	_ domain.BuyerAgentStore = (*store.BuyerAgentStore)(nil)
	_ domain.CatalogStore    = (*store.CatalogStore)(nil)
	_ domain.ActionStore     = (*store.ActionStore)(nil)
	_ domain.WalletStore     = (*store.WalletStore)(nil)
	_ domain.WalletSigner    = (*wallet.Service)(nil)
	_ domain.Facilitator     = (*payment.HTTPFacilitator)(nil)
	_ domain.Market          = (*market.Client)(nil)

	_ payment.ChallengeCache = (*payment.MemoryCache)(nil)
	_ payment.ChallengeCache = (*payment.RedisCache)(nil)
)
