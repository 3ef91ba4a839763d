package consumer

import (
	"context"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhaijames252-sketch/billbillbill/pkg/logging"
)

type recorder struct {
	mu     sync.Mutex
	bodies []string
}

func (r *recorder) process(_ context.Context, d amqp.Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, string(d.Body))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func delivery(body string) amqp.Delivery {
	return amqp.Delivery{Body: []byte(body)}
}

func TestBatcherFlushesWhenFull(t *testing.T) {
	r := &recorder{}
	b := NewBatcher(r.process, 3, time.Minute, 0, logging.NewLogger(), nil)

	ctx := context.Background()
	b.Add(ctx, delivery("a"))
	b.Add(ctx, delivery("b"))
	assert.Equal(t, 0, r.count())

	// Third message fills the batch; Add flushes synchronously.
	b.Add(ctx, delivery("c"))
	assert.Equal(t, 3, r.count())
}

func TestBatcherFlushesOnTimeout(t *testing.T) {
	r := &recorder{}
	b := NewBatcher(r.process, 100, 50*time.Millisecond, 0, logging.NewLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Add(ctx, delivery("a"))
	b.Add(ctx, delivery("b"))

	require.Eventually(t, func() bool { return r.count() == 2 },
		time.Second, 10*time.Millisecond)
}

func TestBatcherStopDrainsPending(t *testing.T) {
	r := &recorder{}
	b := NewBatcher(r.process, 100, time.Minute, 0, logging.NewLogger(), nil)

	ctx := context.Background()
	b.Add(ctx, delivery("a"))
	b.Add(ctx, delivery("b"))
	assert.Equal(t, 0, r.count())

	b.Stop(ctx)
	assert.Equal(t, 2, r.count())
}

func TestBatcherProcessesConcurrently(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	slow := func(_ context.Context, _ amqp.Delivery) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	b := NewBatcher(slow, 100, time.Minute, 4, logging.NewLogger(), nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		b.Add(ctx, delivery("x"))
	}
	b.Flush(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, peak, 1)
}

func TestConnectionNilUntilConnected(t *testing.T) {
	c := New(Config{}, nil, logging.NewLogger(), nil)
	assert.Nil(t, c.Connection())
}

func TestProcessDeliveryAppliesDisposition(t *testing.T) {
	f := newFakeAPI()
	h := NewHandler(f, true, logging.NewLogger(), nil)
	c := New(Config{}, h, logging.NewLogger(), nil)

	ack := &fakeAcknowledger{}
	d := amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  7,
		RoutingKey:   "resource.compute.create",
		Body: []byte(`{"event_type":"compute.instance.create.end",` +
			`"payload":{"instance_id":"vm-1","user_id":"user-1"}}`),
	}
	c.processDelivery(context.Background(), d)
	assert.Equal(t, []string{"ack"}, ack.ops)

	bad := amqp.Delivery{Acknowledger: ack, DeliveryTag: 8, Body: []byte("{broken")}
	c.processDelivery(context.Background(), bad)
	assert.Equal(t, []string{"ack", "reject"}, ack.ops)
}

// fakeAcknowledger records settle operations in order
type fakeAcknowledger struct {
	mu  sync.Mutex
	ops []string
}

func (f *fakeAcknowledger) Ack(_ uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "ack")
	return nil
}

func (f *fakeAcknowledger) Nack(_ uint64, _ bool, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "nack")
	return nil
}

func (f *fakeAcknowledger) Reject(_ uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "reject")
	return nil
}
