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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/stripe-payments-demo/internal/catalog"
	"github.com/noah-isme/stripe-payments-demo/internal/checkout"
	"github.com/noah-isme/stripe-payments-demo/internal/common"
	"github.com/noah-isme/stripe-payments-demo/internal/config"
	"github.com/noah-isme/stripe-payments-demo/internal/health"
	"github.com/noah-isme/stripe-payments-demo/internal/lock"
	"github.com/noah-isme/stripe-payments-demo/internal/obs"
	"github.com/noah-isme/stripe-payments-demo/internal/payment"
	"github.com/noah-isme/stripe-payments-demo/internal/pricing"
	"github.com/noah-isme/stripe-payments-demo/internal/ratelimit"
	"github.com/noah-isme/stripe-payments-demo/internal/resilience"
	"github.com/noah-isme/stripe-payments-demo/internal/security"
	"github.com/noah-isme/stripe-payments-demo/internal/storefront"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "stripe_demo")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "stripe-payments-demo",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse redis url")
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if metricsEnabled {
			if err := redisotel.InstrumentMetrics(redisClient); err != nil {
				logger.Error().Err(err).Msg("instrument redis metrics")
			}
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("ping redis")
		}
		cancel()
	} else {
		logger.Warn().Msg("REDIS_URL not set: catalog cache, idempotency keys and confirm lock disabled")
	}

	breaker := resilience.NewBreaker(
		cfg.ProviderBreakerMinRequests,
		cfg.ProviderBreakerFailureRatio,
		cfg.ProviderBreakerOpenFor,
	).WithTarget("stripe").WithLogger(logger)

	stripeClient := stripeapi.New(stripeapi.Options{
		SecretKey: cfg.StripeSecretKey,
		Timeout:   cfg.ProviderTimeout,
		Breaker:   breaker,
		Logger:    logger,
	})

	var catalogCache catalog.JSONCache
	if redisClient != nil {
		catalogCache = catalog.NewCache(redisClient, cfg.CatalogCacheTTL)
	}
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Source:   catalog.NewStripeSource(stripeClient),
		Cache:    catalogCache,
		Shipping: cfg.ShippingOptions,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	calculator := pricing.Calculator{Prices: catalogService, Shipping: catalogService}

	paymentService := &payment.Service{
		Provider:   payment.NewStripeProvider(stripeClient),
		Calculator: calculator,
		Config:     cfg,
		LockTTL:    cfg.ConfirmLockTTL,
	}
	if redisClient != nil {
		paymentService.Locker = lock.Locker{R: redisClient, Prefix: "lock:"}
	}
	paymentHandler := &payment.Handler{Svc: paymentService}

	if !cfg.WebhookSigningEnabled() {
		logger.Warn().Msg("STRIPE_WEBHOOK_SECRET not set: webhook payloads are accepted without signature verification")
	}
	webhookHandler := payment.Webhook{
		Intents:    paymentService,
		Secret:     cfg.StripeWebhookSecret,
		APIVersion: cfg.StripeAPIVersion,
		MaxBytes:   cfg.WebhookMaxBodyBytes,
		Logger:     logger,
	}

	checkoutHandler := &checkout.Handler{Svc: &checkout.Service{
		Sessions: checkout.NewStripeSessions(stripeClient),
		Prices:   catalogService,
		BaseURL:  cfg.PublicBaseURL,
		Currency: cfg.Currency,
	}}

	storefrontHandler := storefront.NewHandler(cfg)

	var limiter ratelimit.Limiter
	if redisClient != nil {
		limiter = ratelimit.SlidingWindow{
			Client: redisClient,
			Prefix: "rl:",
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		}
	} else {
		limiter = ratelimit.NewMemory(cfg.RateLimitWindow, cfg.RateLimitMax)
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		Key:     ratelimit.ClientIP,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{
		Enable:                cfg.SecurityHeadersEnabled,
		EnableHSTS:            cfg.SecurityHSTSEnabled,
		HSTSMaxAge:            envInt("SECURITY_HSTS_MAX_AGE", 31536000),
		ContentSecurityPolicy: security.StorefrontCSP,
	}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", http.StripPrefix("/debug/pprof", protectPprof(newPprofMux(), user, pass)))
	}

	checks := map[string]health.Checker{}
	if redisClient != nil {
		checks["redis"] = health.RedisChecker{Client: redisClient}
	}
	healthHandler := health.Handler{
		Checks:  checks,
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	// The webhook reads its own capped raw body and must never be throttled or
	// deduplicated, so it stays outside the client group.
	r.Post("/webhook", webhookHandler.Handle)

	r.Group(func(g chi.Router) {
		g.Use(security.BodyLimit{Max: cfg.RequestMaxBodyBytes}.Middleware)

		g.Get("/", storefrontHandler.Index)
		g.Get("/static/*", storefrontHandler.Static)
		g.Get("/config", storefrontHandler.Config)
		g.Get("/products", catalogHandler.Products)
		g.Get("/products/{id}", catalogHandler.Product)
		g.Get("/payment_intents/{id}/status", paymentHandler.Status)

		g.Group(func(client chi.Router) {
			client.Use(rateLimit.Middleware)
			if redisClient != nil {
				client.Use(common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}.Middleware)
			}
			client.Post("/payment_intents", paymentHandler.Create)
			client.Post("/payment_intents/{id}/update_quantity", paymentHandler.UpdateQuantity)
			client.Post("/payment_intents/{id}/shipping_change", paymentHandler.ShippingChange)
			client.Post("/payment_intents/{id}/update_currency", paymentHandler.UpdateCurrency)
			client.Post("/create-checkout-session", checkoutHandler.CreateSession)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 10000))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="pprof"`)
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
