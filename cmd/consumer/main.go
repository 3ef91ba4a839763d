package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/bhaijames252-sketch/billbillbill/internal/consumer"
	"github.com/bhaijames252-sketch/billbillbill/pkg/clients"
	billingclient "github.com/bhaijames252-sketch/billbillbill/pkg/clients/billing"
	"github.com/bhaijames252-sketch/billbillbill/pkg/config"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
	"github.com/bhaijames252-sketch/billbillbill/pkg/monitoring"
	"github.com/bhaijames252-sketch/billbillbill/pkg/server"
	"github.com/bhaijames252-sketch/billbillbill/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("event-consumer")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting event consumer")

	cfg := consumer.LoadConfig()

	// Billing API client with transport-level retries
	retryConfig := clients.DefaultRetryConfig()
	retryConfig.MaxRetries = cfg.APIRetryCount
	retryConfig.RetryDelay = cfg.APIRetryDelay
	client := billingclient.NewClient(billingclient.Config{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.APITimeout,
		Logger:      logger,
		RetryConfig: &retryConfig,
	})

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("event-consumer", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("event-consumer", version.Version, version.GitCommit)
	metrics := consumer.NewMetrics(metricsCollector)

	healthChecker.AddCheck("billing_api", monitoring.HTTPServiceHealthCheck("billing-api", cfg.APIBaseURL+"/health"))

	handler := consumer.NewHandler(client, cfg.SkipWallet, logger, metrics)
	c := consumer.New(cfg, handler, logger, metrics)
	healthChecker.AddCheck("broker", monitoring.BrokerHealthCheck(c.Connection))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Health and metrics endpoints on the side port
	go func() {
		router := server.SetupServiceRouter(logger, "event-consumer", healthChecker, metricsCollector)
		serverConfig := server.DefaultConfig("event-consumer", fmt.Sprintf("%d", cfg.MetricsPort))
		if err := server.Start(serverConfig, router, logger); err != nil {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()

	if err := c.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Consumer terminated")
	}

	logger.Info("Consumer shut down cleanly")
}
