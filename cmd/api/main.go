package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/example/ec-checkout/internal/api"
	"github.com/example/ec-checkout/internal/api/middleware"
	"github.com/example/ec-checkout/internal/auth"
	"github.com/example/ec-checkout/internal/checkout"
	"github.com/example/ec-checkout/internal/config"
	"github.com/example/ec-checkout/internal/domain/order"
	"github.com/example/ec-checkout/internal/domain/user"
	"github.com/example/ec-checkout/internal/infrastructure/cache"
	"github.com/example/ec-checkout/internal/infrastructure/kafka"
	"github.com/example/ec-checkout/internal/infrastructure/store"
	"github.com/example/ec-checkout/internal/infrastructure/store/dynamo"
	"github.com/example/ec-checkout/internal/infrastructure/store/postgres"
	"github.com/example/ec-checkout/internal/metrics"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/telemetry"
	"github.com/example/ec-checkout/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[API] %v", err)
	}

	log.Println("[API] ========================================")
	log.Println("[API] EC Shop - Checkout API")
	log.Println("[API] ========================================")
	log.Printf("[API] Order store: %s", cfg.Store.Driver)
	log.Printf("[API] Kafka: %v (topic %s)", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	log.Printf("[API] Redis: %s", cfg.Redis.Addr)

	db, err := store.ConnectPostgres(cfg.Store.DatabaseURL)
	if err != nil {
		log.Fatalf("[API] Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()
	log.Println("[API] Connected to PostgreSQL")

	if cfg.Store.Migrate {
		if err := store.Migrate(db); err != nil {
			log.Fatalf("[API] Migration failed: %v", err)
		}
		log.Println("[API] Schema is up to date")
	}

	orders, err := newOrderRepository(ctx, cfg.Store, db)
	if err != nil {
		log.Fatalf("[API] Failed to set up order store: %v", err)
	}

	// Lifecycle events are best effort; without brokers nothing is published
	var publisher order.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
		publisher = producer
	}

	var events webhook.EventLog
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("[API] Redis unavailable, webhook de-duplication relies on the ledger: %v", err)
		}
		events = cache.NewEventLog(rdb, cfg.Redis.EventTTL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, "api")

	shutdownTracing, err := telemetry.Init(ctx, "checkout-api", cfg.Tracing.Telemetry())
	if err != nil {
		log.Fatalf("[API] Failed to initialize tracing: %v", err)
	}

	policy := cfg.Retry.Policy()
	ledger := order.NewLedger(orders, publisher).WithCurrency(cfg.Payment.Currency)
	catalog := postgres.NewCatalog(db)
	users := user.NewDirectory(postgres.NewUserRepository(db))

	gateway := payment.NewBreakerGateway(
		payment.NewStripeGateway(cfg.Payment.StripeSecretKey),
		cfg.Payment.BreakerFailures,
		cfg.Payment.BreakerTimeout,
	)
	checkoutSvc := checkout.NewService(ledger, gateway, catalog, checkout.Config{
		SuccessURL:   cfg.Payment.SuccessURL,
		CancelURL:    cfg.Payment.CancelURL,
		Currency:     cfg.Payment.Currency,
		VerifyPrices: cfg.Payment.VerifyPrices,
		Retry:        policy,
	}, m)

	paymentReceiver := webhook.NewPaymentReceiver(payment.NewStripeVerifier(cfg.Payment.WebhookSecret), ledger, events, m, policy)
	identityReceiver, err := webhook.NewIdentityReceiver(cfg.Identity.WebhookSecret, users)
	if err != nil {
		log.Fatalf("[API] Invalid identity webhook secret: %v", err)
	}

	admin := middleware.AdminPolicy{Roles: cfg.Auth.AdminRoles, Principals: cfg.Auth.AdminPrincipals}
	handlers := api.NewHandlers(api.Deps{
		Checkout:        checkoutSvc,
		Ledger:          ledger,
		Catalog:         catalog,
		Users:           users,
		PaymentWebhook:  paymentReceiver,
		IdentityWebhook: identityReceiver,
		Admin:           admin,
		Metrics:         m,
	})
	router := api.NewRouter(api.RouterConfig{
		Handlers:       handlers,
		JWTService:     auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		Admin:          admin,
		Metrics:        m,
		Gatherer:       reg,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      otelhttp.NewHandler(router, "checkout-api"),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Println("[API] ========================================")
		log.Printf("[API] Server started on %s", cfg.HTTP.Addr)
		log.Println("[API] ========================================")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[API] Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[API] Shutdown error: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("[API] Tracing shutdown error: %v", err)
	}
}

// newOrderRepository picks the order store. The catalog and users stay in
// Postgres whichever driver is chosen.
func newOrderRepository(ctx context.Context, cfg config.StoreConfig, db *sql.DB) (order.Repository, error) {
	if cfg.Driver != config.DriverDynamoDB {
		return postgres.NewOrderRepository(db), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, err
	}
	log.Printf("[API] Orders in DynamoDB table %s (%s)", cfg.DynamoTable, cfg.AWSRegion)
	return dynamo.NewOrderRepository(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), nil
}
