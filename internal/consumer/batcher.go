package consumer

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

// defaultWorkers caps parallel handler invocations within one batch
const defaultWorkers = 10

// ProcessFunc handles one delivery, including its ack/nack
type ProcessFunc func(ctx context.Context, d amqp.Delivery)

// Batcher accumulates deliveries and flushes them either when the batch is
// full or when the oldest message has waited batchTimeout.
type Batcher struct {
	process      ProcessFunc
	batchSize    int
	batchTimeout time.Duration
	workers      int64
	logger       logging.Logger
	metrics      *Metrics

	mu      sync.Mutex
	pending []amqp.Delivery
	oldest  time.Time

	stop chan struct{}
	once sync.Once
}

// NewBatcher creates a batcher running at most workers concurrent handlers
// per flush. Call Run to start the flush loop.
func NewBatcher(process ProcessFunc, batchSize int, batchTimeout time.Duration, workers int, logger logging.Logger, metrics *Metrics) *Batcher {
	if batchSize <= 0 {
		batchSize = 1
	}
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Batcher{
		process:      process,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		workers:      int64(workers),
		logger:       logger,
		metrics:      metrics,
		stop:         make(chan struct{}),
	}
}

// Add queues a delivery and flushes if the batch is full
func (b *Batcher) Add(ctx context.Context, d amqp.Delivery) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.oldest = time.Now()
	}
	b.pending = append(b.pending, d)
	full := len(b.pending) >= b.batchSize
	b.mu.Unlock()

	if full {
		b.Flush(ctx)
	}
}

// Run flushes aged batches until ctx is done or Stop is called
func (b *Batcher) Run(ctx context.Context) {
	ticker := time.NewTicker(b.batchTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.mu.Lock()
			aged := len(b.pending) > 0 && time.Since(b.oldest) >= b.batchTimeout
			b.mu.Unlock()
			if aged {
				b.Flush(ctx)
			}
		}
	}
}

// Flush drains the pending batch and processes it concurrently. Blocks
// until every message in the batch is handled.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	b.metrics.batch()
	b.logger.WithField("batch_size", len(batch)).Debug("Processing batch")

	sem := semaphore.NewWeighted(b.workers)
	var wg sync.WaitGroup
	for _, d := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled mid-flush; leave the rest unacked so the
			// broker redelivers them.
			b.logger.WithError(err).Warn("Batch flush interrupted")
			break
		}
		wg.Add(1)
		go func(d amqp.Delivery) {
			defer wg.Done()
			defer sem.Release(1)
			b.process(ctx, d)
		}(d)
	}
	wg.Wait()
}

// Stop halts the flush loop and drains whatever is still pending
func (b *Batcher) Stop(ctx context.Context) {
	b.once.Do(func() { close(b.stop) })
	b.Flush(ctx)
}
