package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/folienwerk/backend-shop/internal/analytics"
	"github.com/folienwerk/backend-shop/internal/auth"
	"github.com/folienwerk/backend-shop/internal/cart"
	"github.com/folienwerk/backend-shop/internal/catalog"
	"github.com/folienwerk/backend-shop/internal/checkout"
	"github.com/folienwerk/backend-shop/internal/common"
	"github.com/folienwerk/backend-shop/internal/config"
	"github.com/folienwerk/backend-shop/internal/discount"
	"github.com/folienwerk/backend-shop/internal/events"
	"github.com/folienwerk/backend-shop/internal/health"
	"github.com/folienwerk/backend-shop/internal/obs"
	"github.com/folienwerk/backend-shop/internal/order"
	"github.com/folienwerk/backend-shop/internal/payment"
	"github.com/folienwerk/backend-shop/internal/pricing"
	"github.com/folienwerk/backend-shop/internal/queue"
	"github.com/folienwerk/backend-shop/internal/ratelimit"
	"github.com/folienwerk/backend-shop/internal/security"
	"github.com/folienwerk/backend-shop/internal/settings"
	"github.com/folienwerk/backend-shop/internal/sitemap"
	"github.com/folienwerk/backend-shop/internal/store"
	"github.com/folienwerk/backend-shop/internal/upload"
	"github.com/folienwerk/backend-shop/internal/user"
)

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func main() {
	logger := obs.NewLogger(envOrDefault("LOG_FORMAT", "json"), envOrDefault("LOG_LEVEL", "info"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics("shop", nil)

	otelEnabled := envBool("OTEL_ENABLED", false)
	if otelEnabled {
		shutdown, err := obs.InitTracer(rootCtx, obs.TracingConfig{
			ServiceName:   "backend-shop",
			Endpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SamplingRatio: envFloat("OTEL_SAMPLING_RATIO", 0.1),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("init tracer")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(ctx); err != nil {
				logger.Warn().Err(err).Msg("tracer shutdown")
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database url")
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "backend-shop-api"
	if otelEnabled {
		poolCfg.ConnConfig.Tracer = obs.PGXTracer{}
	}
	pool, err := pgxpool.NewWithConfig(rootCtx, poolCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()
	if err := pool.Ping(rootCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping postgres")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	if otelEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Warn().Err(err).Msg("instrument redis tracing")
		}
	}

	productRepo := store.NewProductRepo(pool, logger)
	cartRepo := store.NewCartRepo(pool, logger)
	discountRepo := store.NewDiscountRepo(pool, logger)
	userRepo := store.NewUserRepo(pool, logger)
	orderRepo := store.NewOrderRepo(pool, logger)
	sessionRepo := store.NewSessionRepo(pool, logger)
	uploadRepo := store.NewUploadRepo(pool, logger)
	eventRepo := store.NewEventRepo(pool, logger)

	bus := &events.Bus{
		Store: eventRepo,
		Notifiers: []events.Notifier{
			queue.EventNotifier{Enq: queue.Enqueuer{R: redisClient}},
		},
	}

	var provider payment.Provider
	if cfg.PayPalClientID != "" && cfg.PayPalClientSecret != "" {
		provider = &payment.PayPal{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
		}
	} else {
		logger.Warn().Msg("paypal credentials missing, using stub payment provider")
		provider = &payment.Stub{}
	}

	freeAbove := pricing.Money(cfg.FreeShippingAbove)
	settingsSvc := &settings.Service{
		Client: redisClient,
		Defaults: settings.Settings{
			TaxRateBps:           cfg.TaxRateBps,
			DefaultShippingCents: pricing.Money(cfg.DefaultShippingCost),
			FreeShippingAbove:    &freeAbove,
		},
		Logger: logger,
	}

	catalogSvc := &catalog.Service{
		Products: productRepo,
		Cache:    catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Logger:   logger,
	}
	catalogHandler := &catalog.Handler{Svc: catalogSvc}
	catalogAdmin := &catalog.AdminHandler{Svc: catalogSvc, Products: productRepo}

	cartSvc := &cart.Service{
		Pool:      pool,
		Carts:     cartRepo,
		Products:  productRepo,
		Discounts: discountRepo,
		Users:     userRepo,
		Uploads:   uploadRepo,
		TTL:       cfg.CartTTL,
		Logger:    logger,
	}
	cartHandler := &cart.Handler{
		Svc:             cartSvc,
		TaxBps:          cfg.TaxRateBps,
		DefaultShipping: pricing.Money(cfg.DefaultShippingCost),
		FreeAbove:       freeAbove,
	}

	discountHandler := &discount.Handler{Repo: discountRepo}

	checkoutSvc := &checkout.Service{
		Pool:      pool,
		Carts:     cartRepo,
		Products:  productRepo,
		Discounts: discountRepo,
		Users:     userRepo,
		Orders:    orderRepo,
		Sessions:  sessionRepo,
		Outbox:    eventRepo,
		Bus:       bus,
		Provider:  provider,
		Settings:  settingsSvc,

		Currency:        cfg.Currency,
		TaxBps:          cfg.TaxRateBps,
		DefaultShipping: pricing.Money(cfg.DefaultShippingCost),
		FreeAbove:       freeAbove,
		SessionTTL:      cfg.SessionTTL,
		PublicBaseURL:   cfg.PublicBaseURL,

		Logger: logger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc}

	verifier, _ := provider.(payment.WebhookVerifier)
	webhookHandler := &checkout.WebhookHandler{
		Svc:       checkoutSvc,
		Verifier:  verifier,
		WebhookID: cfg.PayPalWebhookID,
		Logger:    logger,
	}

	orderSvc := &order.Service{Orders: orderRepo, Users: userRepo, Bus: bus, Logger: logger}
	orderHandler := &order.Handler{Svc: orderSvc}
	orderAdmin := &order.AdminHandler{Svc: orderSvc}

	uploadHandler := &upload.Handler{
		Uploads: uploadRepo,
		Store:   &upload.DiskStorage{Root: cfg.UploadDir},
		MaxSize: cfg.UploadMaxSizeBytes,
		Logger:  logger,
	}

	tokens := &auth.Tokens{
		Secret: []byte(cfg.JWTSecret),
		Issuer: "backend-shop",
		TTL:    cfg.AccessTokenTTL,
	}
	authMW := &auth.Middleware{Tokens: tokens, Secure: cfg.AppEnv == "production"}
	authHandler := &auth.Handler{Svc: &auth.Service{Users: userRepo, Tokens: tokens, Logger: logger}}

	userHandler := &user.Handler{Users: userRepo, Uploads: uploadRepo}
	userAdmin := &user.AdminHandler{Users: userRepo}

	settingsAdmin := &settings.AdminHandler{Svc: settingsSvc}

	statsAdmin := &analytics.AdminHandler{Svc: &analytics.Service{DB: pool, Client: redisClient, Logger: logger}}

	sitemapHandler := &sitemap.Handler{Products: productRepo, BaseURL: cfg.PublicBaseURL, Logger: logger}

	healthHandler := health.Handler{
		DB:    health.PingerFunc(pool.Ping),
		Redis: health.PingerFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	}

	limiter := ratelimit.Limiter{Client: redisClient}
	rateLogger := func(err error) { logger.Warn().Err(err).Msg("rate limiter") }
	loginLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.KeyByIP("login"), Window: time.Minute, Max: 10},
		OnError: rateLogger,
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.KeyByUser("checkout"), Window: time.Minute, Max: 20},
		OnError: rateLogger,
	}
	uploadLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.KeyByIP("upload"), Window: time.Minute, Max: 30},
		OnError: rateLogger,
	}
	discountLimit := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Key: ratelimit.KeyByIP("discount"), Window: time.Minute, Max: 30},
		OnError: rateLogger,
	}

	idem := common.Idem{R: redisClient, TTL: 24 * time.Hour}

	httpMetrics := obs.NewHTTPMetrics("shop", nil, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if otelEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/sitemap.xml", sitemapHandler.ServeHTTP)
	r.Route("/webhooks", webhookHandler.Routes)

	if envBool("PPROF_ENABLED", false) {
		r.Mount("/debug", protectedPprof())
	}

	bodyLimit := security.BodyLimit{Max: 1 << 20}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMW.Authenticate)
		r.Use(authMW.AnonCookie)

		r.Group(func(r chi.Router) {
			r.Use(bodyLimit.Middleware)

			catalogHandler.Routes(r)

			r.Route("/cart", cartHandler.Routes)

			r.Route("/discounts", func(r chi.Router) {
				r.Use(discountLimit.Middleware)
				discountHandler.Routes(r)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Use(auth.RequireUser)
				r.Use(checkoutLimit.Middleware)
				r.Use(idem.Middleware)
				checkoutHandler.Routes(r)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Use(auth.RequireUser)
				orderHandler.Routes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireUser)
				userHandler.Routes(r)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(loginLimit.Middleware)
					authHandler.Routes(r)
				})
				r.Group(func(r chi.Router) {
					r.Use(auth.RequireRole(auth.RoleAdmin))
					r.Route("/products", catalogAdmin.Routes)
					r.Route("/orders", orderAdmin.Routes)
					r.Route("/discounts", discountHandler.AdminRoutes)
					r.Route("/settings", settingsAdmin.Routes)
					r.Route("/users", userAdmin.Routes)
					r.Route("/stats", statsAdmin.Routes)
				})
			})
		})

		// Uploads carry multipart bodies and enforce their own size cap.
		r.Route("/uploads", func(r chi.Router) {
			r.Use(uploadLimit.Middleware)
			uploadHandler.Routes(r)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("api stopped")
}

// protectedPprof serves the pprof handlers behind basic auth so profiles are
// never exposed to the public internet.
func protectedPprof() http.Handler {
	user := os.Getenv("PPROF_USER")
	pass := os.Getenv("PPROF_PASS")
	mux := chi.NewRouter()
	mux.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user == "" || pass == "" {
				http.NotFound(w, r)
				return
			}
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	mux.HandleFunc("/pprof/", pprof.Index)
	mux.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/pprof/profile", pprof.Profile)
	mux.HandleFunc("/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/pprof/trace", pprof.Trace)
	return mux
}
