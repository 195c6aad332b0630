package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/asgared/elarcabeer/internal/cart"
	"github.com/asgared/elarcabeer/internal/catalog"
	"github.com/asgared/elarcabeer/internal/checkout"
	"github.com/asgared/elarcabeer/internal/config"
	"github.com/asgared/elarcabeer/internal/content"
	apihttp "github.com/asgared/elarcabeer/internal/http"
	"github.com/asgared/elarcabeer/internal/logger"
	"github.com/asgared/elarcabeer/internal/loyalty"
	"github.com/asgared/elarcabeer/internal/ops"
	"github.com/asgared/elarcabeer/internal/orders"
	"github.com/asgared/elarcabeer/internal/payment"
	"github.com/asgared/elarcabeer/internal/session"
)

const serviceName = "storefront"

func main() {
	log := logger.New(serviceName)
	slog.SetDefault(log)
	log.Info("storefront starting...")

	cfg, err := config.Load()
	if err != nil {
		fatal(log, "invalid configuration", err)
	}

	tp := logger.InitTracing(serviceName)

	// Orders database
	creds := &orders.Credentials{
		Driver:            cfg.DB.Driver,
		Host:              cfg.DB.Host,
		Port:              cfg.DB.Port,
		User:              cfg.DB.User,
		Password:          cfg.DB.Password,
		DBName:            cfg.DB.Name,
		MigrationsDirPath: cfg.DB.MigrationsPath,
	}

	orderRepo, err := orders.NewRepository(creds)
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer orderRepo.Close()

	if err := orderRepo.RunMigrations(creds); err != nil {
		fatal(log, "failed to run order migrations", err)
	}

	loyaltyRepo := loyalty.NewRepository(orderRepo.DB(), log.With("component", "loyalty"))
	if err := loyaltyRepo.RunMigrations(cfg.DB.LoyaltyMigrationsPath); err != nil {
		fatal(log, "failed to run loyalty migrations", err)
	}

	contentRepo := content.NewRepository(orderRepo.DB())
	if err := contentRepo.RunMigrations(cfg.DB.ContentMigrationsPath); err != nil {
		fatal(log, "failed to run content migrations", err)
	}
	log.Info("database migrations completed")

	// Catalog
	catalogRepo, err := catalog.NewRepository(cfg.Catalog.Path)
	if err != nil {
		fatal(log, "failed to open catalog", err)
	}
	defer catalogRepo.Close()

	if err := catalogRepo.RunMigrations(cfg.Catalog.MigrationsPath); err != nil {
		fatal(log, "failed to run catalog migrations", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if err := redisClient.Ping(startupCtx).Err(); err != nil {
		fatal(log, "failed to connect to redis", err)
	}
	log.Info("connected to redis", "addr", cfg.RedisAddr)

	products := catalog.NewCachedStore(catalogRepo, redisClient, cfg.Catalog.CacheTTL, log.With("component", "catalog"))

	// Cart mirror
	mongoDB, err := cart.ConnectMongoDB(startupCtx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		fatal(log, "failed to connect to mongodb", err)
	}
	defer mongoDB.Client().Disconnect(context.Background())

	cartRepo := cart.NewMongoRepository(mongoDB)
	if err := cartRepo.CreateIndexes(startupCtx); err != nil {
		fatal(log, "failed to create cart indexes", err)
	}
	carts := cart.NewService(cartRepo, cart.NewRedisCache(redisClient), log.With("component", "cart"))

	// Payments
	stripeProvider := payment.NewStripeProvider(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret)
	provider := payment.WithBreaker(stripeProvider, payment.BreakerSettings{Name: "stripe"})

	validator, err := checkout.NewValidator(products,
		cfg.Checkout.DefaultCurrency, cfg.Checkout.DefaultLocale, cfg.Checkout.SupportedLocales)
	if err != nil {
		fatal(log, "failed to build checkout validator", err)
	}
	initiator := checkout.NewInitiator(provider, cfg.Checkout.SuccessURL, cfg.Checkout.CancelURL, log.With("component", "checkout"))
	webhooks := checkout.NewWebhookProcessor(provider, orderRepo, log.With("component", "webhook"))

	sessions := session.NewStore(redisClient)

	// Background workers
	var wg sync.WaitGroup
	workerCtx, workerCancel := context.WithCancel(context.Background())

	poller := orders.NewOutboxPoller(orderRepo, cfg.OrdersTopic, log.With("component", "outbox"), cfg.KafkaBrokers...)
	cartConsumer := orders.NewConsumer(cfg.OrdersTopic, "cart-clearer", carts.HandleOrderCreated,
		log.With("component", "cart-consumer"), cfg.KafkaBrokers...)
	loyaltyConsumer := orders.NewConsumer(cfg.OrdersTopic, "loyalty", loyaltyRepo.HandleOrderCreated,
		log.With("component", "loyalty-consumer"), cfg.KafkaBrokers...)

	for _, run := range []func(context.Context){poller.Run, cartConsumer.Run, loyaltyConsumer.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(workerCtx)
		}()
	}

	// Ops gRPC server
	opsServer := ops.NewServer(log.With("component", "ops"))
	opsServer.AddCheck("postgres", func(ctx context.Context) bool {
		return orderRepo.DB().PingContext(ctx) == nil
	})
	opsServer.AddCheck("redis", func(ctx context.Context) bool {
		return redisClient.Ping(ctx).Err() == nil
	})
	opsServer.AddCheck("mongodb", func(ctx context.Context) bool {
		return mongoDB.Client().Ping(ctx, nil) == nil
	})
	opsServer.AddCheck("payments", func(context.Context) bool {
		return provider.State() != "open"
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		opsServer.Watch(workerCtx, 10*time.Second, 2*time.Second)
	}()

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		fatal(log, "failed to listen", err)
	}
	go func() {
		log.Info("ops gRPC server listening", "port", cfg.GRPCPort)
		if err := opsServer.Serve(lis); err != nil {
			fatal(log, "ops server error", err)
		}
	}()

	// HTTP API
	timeout := cfg.RequestTimeout
	jwtSecret := []byte(cfg.Auth.JWTSecret)
	handlers := apihttp.Handlers{
		Checkout: apihttp.NewCheckoutHandler(validator, initiator, webhooks, carts, timeout, log),
		Orders:   apihttp.NewOrdersHandler(orderRepo, timeout, log),
		Products: apihttp.NewProductHandler(products, cfg.Checkout.DefaultCurrency, timeout, log),
		Cart:     apihttp.NewCartHandler(carts, products, cfg.Checkout.DefaultCurrency, timeout, log),
		Account:  apihttp.NewAccountHandler(loyaltyRepo, timeout, log),
		Content:  apihttp.NewContentHandler(contentRepo, timeout, log),
		Admin: apihttp.NewAdminSessionHandler(sessions, apihttp.AdminSessionConfig{
			JWTSecret:     jwtSecret,
			CookieName:    cfg.Auth.SessionCookie,
			TTL:           cfg.Auth.SessionTTL,
			SecureCookies: cfg.Auth.SecureCookies,
		}, timeout, log),
		Sessions: sessions,
	}

	router := apihttp.NewRouter(apihttp.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		JWTSecret:          jwtSecret,
		SessionCookie:      cfg.Auth.SessionCookie,
		CheckoutRateRPS:    cfg.Checkout.RateRPS,
		CheckoutRateBurst:  cfg.Checkout.RateBurst,
		TrustedProxies:     cfg.TrustedProxies,
	}, handlers, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down storefront...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}
	opsServer.GracefulStop()
	workerCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("background workers stopped cleanly")
	case <-ctx.Done():
		log.Warn("background workers did not stop before the shutdown timeout")
	}

	for name, c := range map[string]interface{ Close() error }{
		"outbox":           poller,
		"cart consumer":    cartConsumer,
		"loyalty consumer": loyaltyConsumer,
	} {
		if err := c.Close(); err != nil {
			log.Error("failed to close kafka client", "client", name, "error", err)
		}
	}
	if err := tp.Shutdown(ctx); err != nil {
		log.Error("failed to shut down tracer provider", "error", err)
	}

	log.Info("storefront stopped")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
