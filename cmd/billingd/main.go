package main

import (
	"context"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bhaijames252-sketch/billbillbill/internal/billing"
	"github.com/bhaijames252-sketch/billbillbill/internal/handlers"
	"github.com/bhaijames252-sketch/billbillbill/internal/pricing"
	"github.com/bhaijames252-sketch/billbillbill/internal/store"
	"github.com/bhaijames252-sketch/billbillbill/internal/wallet"
	"github.com/bhaijames252-sketch/billbillbill/pkg/config"
	"github.com/bhaijames252-sketch/billbillbill/pkg/database"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/monitoring"
	"github.com/bhaijames252-sketch/billbillbill/pkg/redis"
	"github.com/bhaijames252-sketch/billbillbill/pkg/server"
	"github.com/bhaijames252-sketch/billbillbill/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("billingd")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting billingd (Billing API)")

	dbURL := config.RequireEnv("DATABASE_URL")
	mongoURI := config.RequireEnv("MONGO_URI")
	mongoDBName := config.GetEnv("MONGO_DATABASE", "billing")

	// Connect to Postgres (wallets, latest prices)
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	// Connect to Mongo (resources, bills, archives, price history)
	mongoConfig := database.DefaultMongoConfig()
	mongoConfig.URI = mongoURI
	mongoConfig.Database = mongoDBName
	mongoDB := database.MustConnectMongo(mongoConfig, logger)

	// Optional Redis price cache. REDIS_ADDRS selects a Sentinel or Cluster
	// deployment; REDIS_URL a standalone node.
	var priceCache goredis.UniversalClient
	if addrs := config.GetEnv("REDIS_ADDRS", ""); addrs != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cache, err := redis.NewUniversalClient(ctx, redis.Config{
			Addrs:      strings.Split(addrs, ","),
			MasterName: config.GetEnv("REDIS_MASTER_NAME", ""),
			Password:   config.GetEnv("REDIS_PASSWORD", ""),
		})
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable; price cache disabled")
		} else {
			priceCache = cache
			defer cache.Close()
		}
	} else if redisURL := config.GetEnv("REDIS_URL", ""); redisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		cache, err := redis.NewClientFromURL(ctx, redisURL)
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable; price cache disabled")
		} else {
			priceCache = cache
			defer cache.Close()
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("billingd", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("billingd", version.Version, version.GitCommit)

	// Add health checks
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("mongo", monitoring.MongoHealthCheck(mongoDB))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
		"MONGO_URI":    mongoURI,
	}))

	// Create custom billing metrics
	metrics := &handlers.BillingMetrics{
		ResourceOperations: metricsCollector.NewCounter("resource_operations_total", "Resource operations", []string{"resource_type", "operation", "status"}),
		WalletOperations:   metricsCollector.NewCounter("wallet_operations_total", "Wallet operations", []string{"operation", "status"}),
		BillingRuns:        metricsCollector.NewCounter("billing_runs_total", "Billing cycles computed", []string{"status"}),
	}

	// Create database metrics
	metrics.DBQueries, metrics.DBDuration, metrics.DBConnections = metricsCollector.CreateDatabaseMetrics()

	// Wire services
	resourceStore := store.New(mongoDB, logger)
	walletLedger := wallet.New(db, mongoDB, logger)
	priceService := pricing.New(db, mongoDB, priceCache, logger)
	billingEngine := billing.New(resourceStore, resourceStore, walletLedger, priceService, logger)

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), 30*time.Second)
	if err := resourceStore.EnsureIndexes(indexCtx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure mongo indexes")
	}
	cancelIndexes()

	// Initialize handlers
	handlers.Init(resourceStore, walletLedger, priceService, billingEngine, logger, metrics)

	// Setup router with unified monitoring
	router := server.SetupServiceRouter(logger, "billingd", healthChecker, metricsCollector)
	handlers.RegisterRoutes(router)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("billingd", "8000")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
