package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.Adapter) {
	mr := miniredis.RunT(t)

	adapter, err := redis.Connect(context.Background(), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return mr, adapter
}

func testConfig(name string) Config {
	return Config{
		Name:              name,
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      50 * time.Millisecond,
		BatchSize:         10,
	}
}

func TestQueue_PublishAndConsume(t *testing.T) {
	_, adapter := setupTestRedis(t)
	q, err := NewQueue(adapter, testConfig("test:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	_, err = q.PublishJSON(context.Background(), map[string]string{"key": "value"}, map[string]string{"job_id": "j-1"})
	require.NoError(t, err)

	received := make(chan *Message, 1)
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		received <- msg
		return nil
	}))

	select {
	case msg := <-received:
		var data map[string]string
		require.NoError(t, json.Unmarshal(msg.Data, &data))
		assert.Equal(t, "value", data["key"])
		assert.Equal(t, "j-1", msg.Metadata["job_id"])
		assert.Equal(t, 0, msg.Attempts)
		assert.WithinDuration(t, time.Now(), msg.Timestamp, 5*time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	require.Eventually(t, func() bool {
		stats, err := q.Stats(context.Background())
		return err == nil && stats.PendingMessages == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQueue_FailedMessageStaysPending(t *testing.T) {
	_, adapter := setupTestRedis(t)
	q, err := NewQueue(adapter, testConfig("test:retry:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	_, err = q.Publish(context.Background(), []byte(`{}`), nil)
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		calls.Add(1)
		return assert.AnError
	}))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, 2*time.Second, 20*time.Millisecond)
	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PendingMessages)
}

func TestQueue_ExhaustedMessageGoesToDLQ(t *testing.T) {
	_, adapter := setupTestRedis(t)
	cfg := testConfig("test:dlq:queue")
	cfg.MaxRetries = 1
	cfg.EnableDLQ = true
	q, err := NewQueue(adapter, cfg)
	require.NoError(t, err)

	id, err := q.Publish(context.Background(), []byte(`{"n":1}`), map[string]string{"job_id": "j-9"})
	require.NoError(t, err)

	// one failed delivery, then the entry is handed back as a retry
	msgs, err := adapter.XReadGroup(context.Background(), cfg.ConsumerGroup, cfg.ConsumerName, cfg.Name, ">", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	q.handler = func(ctx context.Context, msg *Message) error {
		t.Fatal("exhausted message must not reach the handler")
		return nil
	}
	q.handle(q.toMessage(msgs[0], 1))

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DeadLetters)
	assert.Equal(t, int64(0), stats.PendingMessages)

	require.NoError(t, adapter.XGroupCreateMkStream(context.Background(), cfg.Name+":dlq", "inspect", "0"))
	dead, err := adapter.XReadGroup(context.Background(), "inspect", "t", cfg.Name+":dlq", ">", 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, id, dead[0].Values["original_id"])
	assert.Equal(t, "j-9", dead[0].Values["meta_job_id"])
}

func TestQueue_Stats(t *testing.T) {
	_, adapter := setupTestRedis(t)
	q, err := NewQueue(adapter, testConfig("test:stats:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	for i := 0; i < 5; i++ {
		_, err := q.PublishJSON(context.Background(), map[string]int{"count": i}, nil)
		require.NoError(t, err)
	}

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.TotalMessages)
	assert.Zero(t, stats.DeadLetters)
}

func TestMessage_AckNack(t *testing.T) {
	_, adapter := setupTestRedis(t)
	q, err := NewQueue(adapter, testConfig("test:ack:queue"))
	require.NoError(t, err)
	defer q.Stop(time.Second)

	t.Run("ack marks message as processed", func(t *testing.T) {
		id, err := q.Publish(context.Background(), []byte(`{}`), nil)
		require.NoError(t, err)

		msg := &Message{ID: id, queue: q}
		require.NoError(t, msg.Ack())
		assert.True(t, msg.settled())

		err = msg.Ack()
		assert.ErrorContains(t, err, "already acknowledged")
	})

	t.Run("nack leaves message for retry", func(t *testing.T) {
		msg := &Message{ID: "0-1", queue: q}
		require.NoError(t, msg.Nack())

		assert.ErrorContains(t, msg.Nack(), "already rejected")
		assert.ErrorContains(t, msg.Ack(), "already rejected")
	})
}

func TestNewQueue_Validation(t *testing.T) {
	_, adapter := setupTestRedis(t)

	_, err := NewQueue(adapter, Config{})
	assert.EqualError(t, err, "queue name is required")

	// a second queue on the same group must not fail on BUSYGROUP
	first, err := NewQueue(adapter, testConfig("shared"))
	require.NoError(t, err)
	second, err := NewQueue(adapter, testConfig("shared"))
	require.NoError(t, err)
	assert.NoError(t, first.Stop(time.Second))
	assert.NoError(t, second.Stop(time.Second))
}

func TestQueue_Stop(t *testing.T) {
	_, adapter := setupTestRedis(t)
	q, err := NewQueue(adapter, testConfig("test:stop:queue"))
	require.NoError(t, err)

	require.NoError(t, q.Consume(func(ctx context.Context, msg *Message) error {
		time.Sleep(100 * time.Millisecond)
		return nil
	}))
	assert.NoError(t, q.Stop(2*time.Second))
}
