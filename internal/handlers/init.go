package handlers

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bhaijames252-sketch/billbillbill/internal/billing"
	"github.com/bhaijames252-sketch/billbillbill/internal/pricing"
	"github.com/bhaijames252-sketch/billbillbill/internal/store"
	"github.com/bhaijames252-sketch/billbillbill/internal/wallet"
	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

var (
	resources *store.Store
	wallets   *wallet.Ledger
	prices    *pricing.Service
	engine    *billing.Engine
	logger    logging.Logger
	metrics   *BillingMetrics
)

// BillingMetrics holds the API's custom Prometheus metrics
type BillingMetrics struct {
	ResourceOperations *prometheus.CounterVec
	WalletOperations   *prometheus.CounterVec
	BillingRuns        *prometheus.CounterVec

	DBQueries     *prometheus.CounterVec
	DBDuration    *prometheus.HistogramVec
	DBConnections *prometheus.GaugeVec
}

func (m *BillingMetrics) resourceOp(resourceType, operation, status string) {
	if m != nil && m.ResourceOperations != nil {
		m.ResourceOperations.WithLabelValues(resourceType, operation, status).Inc()
	}
}

func (m *BillingMetrics) walletOp(operation, status string) {
	if m != nil && m.WalletOperations != nil {
		m.WalletOperations.WithLabelValues(operation, status).Inc()
	}
}

func (m *BillingMetrics) billingRun(status string) {
	if m != nil && m.BillingRuns != nil {
		m.BillingRuns.WithLabelValues(status).Inc()
	}
}

// Init wires the handlers to their backing services
func Init(s *store.Store, w *wallet.Ledger, p *pricing.Service, e *billing.Engine, log logging.Logger, m *BillingMetrics) {
	resources = s
	wallets = w
	prices = p
	engine = e
	logger = log
	metrics = m
}
