package consumer

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

// Consumer owns the broker connection and feeds deliveries through the
// batcher into the handler.
type Consumer struct {
	cfg     Config
	handler *Handler
	logger  logging.Logger
	metrics *Metrics

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	batcher *Batcher
}

// New creates a consumer. Call Run to connect and start consuming.
func New(cfg Config, handler *Handler, logger logging.Logger, metrics *Metrics) *Consumer {
	return &Consumer{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// connect dials the broker and declares the topology: a durable topic
// exchange, the work queue dead-lettering into <queue>_dlq, and the DLQ
// itself.
func (c *Consumer) connect() error {
	conn, err := amqp.Dial(c.cfg.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Qos(c.cfg.PrefetchCount, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", c.cfg.Exchange, err)
	}

	if _, err := ch.QueueDeclare(c.cfg.DLQ(), true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}

	queueArgs := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": c.cfg.DLQ(),
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, queueArgs); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare queue %s: %w", c.cfg.Queue, err)
	}

	if err := ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()
	return nil
}

// Connection exposes the live broker connection for health checks. Nil
// until the first connect and between reconnect attempts.
func (c *Consumer) Connection() *amqp.Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Run consumes until ctx is cancelled, reconnecting after broker failures
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Errorf("Consumer stopped; reconnecting in %s", c.cfg.ReconnectDelay)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

func (c *Consumer) runOnce(ctx context.Context) error {
	if err := c.connect(); err != nil {
		return err
	}
	defer c.close()

	c.logger.WithFields(logging.Fields{
		"queue":       c.cfg.Queue,
		"exchange":    c.cfg.Exchange,
		"routing_key": c.cfg.RoutingKey,
		"prefetch":    c.cfg.PrefetchCount,
	}).Info("Consuming events")

	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.batcher = NewBatcher(c.processDelivery, c.cfg.BatchSize, c.cfg.BatchTimeout, c.cfg.WorkerCount, c.logger, c.metrics)
	batcherCtx, cancelBatcher := context.WithCancel(context.Background())
	defer cancelBatcher()
	go c.batcher.Run(batcherCtx)

	closed := c.conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			c.drain(batcherCtx)
			return nil
		case err := <-closed:
			c.drain(batcherCtx)
			if err != nil {
				return fmt.Errorf("broker connection closed: %w", err)
			}
			return fmt.Errorf("broker connection closed")
		case d, ok := <-deliveries:
			if !ok {
				c.drain(batcherCtx)
				return fmt.Errorf("delivery channel closed")
			}
			if c.cfg.UseBatching {
				c.batcher.Add(batcherCtx, d)
			} else {
				c.processDelivery(batcherCtx, d)
			}
		}
	}
}

// processDelivery runs the handler and applies the resulting disposition
func (c *Consumer) processDelivery(ctx context.Context, d amqp.Delivery) {
	c.metrics.handlerStart()
	defer c.metrics.handlerEnd()

	disposition := c.handler.HandleRaw(ctx, d.Body, d.RoutingKey)

	var err error
	switch disposition {
	case DispositionAck:
		err = d.Ack(false)
	case DispositionReject:
		err = d.Reject(false)
	case DispositionRequeue:
		err = d.Nack(false, true)
	}
	if err != nil {
		c.logger.WithError(err).WithField("disposition", disposition.String()).
			Warn("Failed to settle delivery")
	}
}

// drain flushes in-flight work before the channel goes away.
// Shutdown order matters: batcher first, then channel, then connection.
func (c *Consumer) drain(ctx context.Context) {
	if c.batcher != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		c.batcher.Stop(flushCtx)
	}
}

func (c *Consumer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
