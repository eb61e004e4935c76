package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prago-api/cache"
	"prago-api/config"
	"prago-api/consumers"
	"prago-api/controllers"
	"prago-api/database"
	"prago-api/events"
	"prago-api/middlewares"
	"prago-api/rabbitmq"
	"prago-api/services"
	"prago-api/store"
	"prago-api/tasks"
	"prago-api/utils"
	"prago-api/zarinpal"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func main() {
	cfg := config.LoadConfig()
	setupLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set, using an insecure development secret")
		cfg.JWTSecret = "prago-dev-secret"
	}
	if !cfg.IsProduction() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database initialization failed")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, 5); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}
	st := store.NewSQLStore(db)

	// RabbitMQ
	rmq, err := rabbitmq.NewRabbitMQ(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("RabbitMQ initialization failed")
	}
	defer rmq.Close()
	if err := rmq.SetupQueues(); err != nil {
		log.Fatal().Err(err).Msg("failed to setup RabbitMQ queues")
	}

	// Kafka order events
	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		defer func() {
			if err := kp.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka writer")
			}
		}()
		publisher = kp
	} else {
		log.Warn().Msg("KAFKA_BROKERS is empty, order events are dropped")
	}

	// Redis guard for idempotency keys and OTP cooldowns
	var guard cache.Guard
	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed")
		}
		guard = cache.NewRedisGuard(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR is empty, using in-process guard")
		guard = cache.NewMemory()
	}

	// Background worker
	worker := tasks.NewWorker(st, tasks.LogNotifier{}, tasks.FFProbe{Path: os.Getenv("FFPROBE_PATH")}, rmq, publisher)
	if err := consumers.NewTaskConsumer(worker).Start(ctx, rmq.Channel, cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to start task consumer")
	}

	// Services
	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	gateway := zarinpal.NewClient(cfg.ZarinpalMerchantID, cfg.ZarinpalAPIBase, cfg.ZarinpalTimeout)
	payments := services.NewPayments(st, gateway, publisher, cfg.SiteURL, cfg.FrontendURL)
	accountOpts := services.AccountOptions{
		OTPPeriod:   cfg.OTPPeriod,
		OTPCooldown: cfg.OTPCooldown,
		FrontendURL: cfg.FrontendURL,
	}
	if cfg.GoogleClientID != "" {
		accountOpts.Google = utils.NewGoogleVerifier(cfg.GoogleClientID, "")
	} else {
		log.Warn().Msg("GOOGLE_CLIENT_ID is empty, Google sign-in is disabled")
	}
	accounts := services.NewAccountService(st, tokens, rmq, guard, accountOpts)
	cart := services.NewCartService(st, payments, rmq, publisher, guard, services.CartOptions{
		PaymentCheckDelay: cfg.PaymentCheckDelay,
		IdempotencyTTL:    cfg.IdempotencyKeyTTL,
	})

	handlers := &controllers.Handlers{
		Auth:          controllers.NewAuthController(accounts),
		Catalog:       controllers.NewCatalogController(services.NewCatalogService(st, rmq)),
		Cart:          controllers.NewCartController(cart),
		Coupons:       controllers.NewCouponController(services.NewCouponService(st)),
		Payments:      controllers.NewPaymentController(payments),
		Orders:        controllers.NewOrderController(services.NewOrderService(st)),
		Subscriptions: controllers.NewSubscriptionController(services.NewSubscriptionService(st, payments, rmq, publisher, cfg.PaymentCheckDelay)),
		Enrollments:   controllers.NewEnrollmentController(services.NewEnrollmentService(st)),
		Tickets:       controllers.NewTicketController(services.NewSupportService(st)),
		Posts:         controllers.NewPostController(services.NewBlogService(st)),
	}

	limiter := middlewares.NewIPRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go limiter.RunSweeper(5*time.Minute, ctx.Done())

	// Router
	r := gin.New()
	r.Use(gin.Recovery(), middlewares.RequestLogger(), middlewares.PrometheusMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	controllers.RegisterRoutes(r, handlers, controllers.Guards{
		Auth:      middlewares.AuthMiddleware(tokens),
		Staff:     middlewares.StaffOnly(st.Repos().Users),
		RateLimit: middlewares.RateLimit(limiter),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("prago api starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
