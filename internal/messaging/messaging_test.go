package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/ecomarket/internal/domain"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleOrderEvent() domain.Event {
	order := domain.NewOrder(domain.User{ID: "u1", Username: "alice"}, "12 Orchard Lane, Springfield", "", "")
	order.ID = "order-1"
	order.TotalAmount = decimal.RequireFromString("30.00")
	return domain.NewOrderEvent(domain.EventOrderCreated, "New order created", order)
}

func TestProducer_Publish(t *testing.T) {
	t.Run("keys by aggregate id and sets the event type header", func(t *testing.T) {
		w := &fakeWriter{}
		p := &Producer{writer: w, topic: "ecomarket.events"}

		require.NoError(t, p.Publish(context.Background(), sampleOrderEvent()))
		require.Len(t, w.msgs, 1)

		msg := w.msgs[0]
		assert.Equal(t, "order-1", string(msg.Key))
		assert.Equal(t, "ORDER_CREATED", headerCarrier{msg: &msg}.Get(HeaderEventType))

		var decoded domain.Event
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, domain.EventOrderCreated, decoded.Type)
		require.NotNil(t, decoded.Order)
		assert.Equal(t, "alice", decoded.Order.Username)
		assert.True(t, decoded.Order.TotalAmount.Equal(decimal.RequireFromString("30")))
	})

	t.Run("wraps writer errors", func(t *testing.T) {
		boom := errors.New("broker down")
		p := &Producer{writer: &fakeWriter{err: boom}, topic: "ecomarket.events"}

		err := p.Publish(context.Background(), sampleOrderEvent())
		assert.ErrorIs(t, err, boom)
	})
}

func TestHeaderCarrier(t *testing.T) {
	msg := kafka.Message{}
	c := headerCarrier{msg: &msg}

	c.Set("traceparent", "a")
	c.Set("traceparent", "b")
	c.Set(HeaderEventType, "ORDER_UPDATED")

	assert.Equal(t, "b", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.Equal(t, []string{"traceparent", HeaderEventType}, c.Keys())
}

func TestConsumer_Consume(t *testing.T) {
	newMsg := func(offset int64, eventType string) kafka.Message {
		return kafka.Message{
			Offset:  offset,
			Value:   []byte(`{}`),
			Headers: []kafka.Header{{Key: HeaderEventType, Value: []byte(eventType)}},
		}
	}

	t.Run("dispatches each message and commits it", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		reader := &fakeReader{
			msgs:   []kafka.Message{newMsg(1, "ORDER_CREATED"), newMsg(2, "PRODUCT_STOCK_LOW")},
			cancel: cancel,
		}
		c := newConsumer(reader, "ecomarket.events", "group", consumerConfig{logger: discard(), maxAttempts: 1})

		var seen []domain.EventType
		err := c.Consume(ctx, func(_ context.Context, eventType domain.EventType, _ []byte) error {
			seen = append(seen, eventType)
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, []domain.EventType{domain.EventOrderCreated, domain.EventStockLow}, seen)
		assert.Equal(t, []int64{1, 2}, reader.committed)
	})

	t.Run("retries a failing message then skips it", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		reader := &fakeReader{
			msgs:   []kafka.Message{newMsg(7, "ORDER_CREATED"), newMsg(8, "ORDER_UPDATED")},
			cancel: cancel,
		}
		c := newConsumer(reader, "ecomarket.events", "group", consumerConfig{logger: discard(), maxAttempts: 3})

		attempts := map[domain.EventType]int{}
		err := c.Consume(ctx, func(_ context.Context, eventType domain.EventType, _ []byte) error {
			attempts[eventType]++
			if eventType == domain.EventOrderCreated {
				return errors.New("smtp down")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts[domain.EventOrderCreated])
		assert.Equal(t, 1, attempts[domain.EventOrderUpdated])
		assert.Equal(t, []int64{7, 8}, reader.committed)
	})

	t.Run("succeeds on a later attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		reader := &fakeReader{msgs: []kafka.Message{newMsg(1, "ORDER_CREATED")}, cancel: cancel}
		c := newConsumer(reader, "ecomarket.events", "group", consumerConfig{logger: discard(), maxAttempts: 3})

		calls := 0
		err := c.Consume(ctx, func(context.Context, domain.EventType, []byte) error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
}
