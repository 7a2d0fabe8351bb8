package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNil is returned by Get on a missing key and by XReadGroup on an empty
// stream.
var ErrNil = goredis.Nil

type Options = goredis.UniversalOptions

type StreamMessage struct {
	ID     string
	Values map[string]interface{}
}

// KV covers the key/value commands used for sessions, job status and
// idempotency markers.
type KV interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Streams covers the consumer-group commands of the dispatch queue.
type Streams interface {
	XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error)
	XReadGroup(ctx context.Context, group, consumer, stream, id string, count int64) ([]StreamMessage, error)
	XAck(ctx context.Context, stream, group string, ids ...string) error
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) error
	XLen(ctx context.Context, stream string) (int64, error)
	XTrimApprox(ctx context.Context, stream string, maxLen int64) error
	XPending(ctx context.Context, stream, group string) (*goredis.XPending, error)
	XPendingExt(ctx context.Context, stream, group, start, end string, count int64) ([]goredis.XPendingExt, error)
	XClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error)
}

type Adapter interface {
	KV
	Streams
	Ping(ctx context.Context) error
	Close() error
}

// IsNil reports whether err means "nothing there".
func IsNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

type adapter struct {
	prefix string
	conn   goredis.UniversalClient
}

// Connect opens a client and pings it. Every key and stream name is stored
// under prefix.
func Connect(ctx context.Context, prefix string, opts *Options) (Adapter, error) {
	c := goredis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &adapter{prefix: prefix, conn: c}, nil
}

func (a *adapter) k(key string) string { return a.prefix + key }

func (a *adapter) Ping(ctx context.Context) error { return a.conn.Ping(ctx).Err() }

func (a *adapter) Close() error { return a.conn.Close() }

func (a *adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return a.conn.Set(ctx, a.k(key), value, ttl).Err()
}

func (a *adapter) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return a.conn.SetNX(ctx, a.k(key), value, ttl).Result()
}

func (a *adapter) Get(ctx context.Context, key string) ([]byte, error) {
	return a.conn.Get(ctx, a.k(key)).Bytes()
}

func (a *adapter) Del(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = a.k(key)
	}
	return a.conn.Del(ctx, full...).Err()
}

func (a *adapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := a.conn.Exists(ctx, a.k(key)).Result()
	return n > 0, err
}

func (a *adapter) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return a.conn.XAdd(ctx, &goredis.XAddArgs{Stream: a.k(stream), ID: "*", Values: values}).Result()
}

// XReadGroup never blocks.
func (a *adapter) XReadGroup(ctx context.Context, group, consumer, stream, id string, count int64) ([]StreamMessage, error) {
	res, err := a.conn.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{a.k(stream), id},
		Count:    count,
		Block:    -1,
	}).Result()
	if err != nil {
		return nil, err
	}
	var out []StreamMessage
	for _, s := range res {
		out = append(out, messages(s.Messages)...)
	}
	return out, nil
}

func (a *adapter) XAck(ctx context.Context, stream, group string, ids ...string) error {
	return a.conn.XAck(ctx, a.k(stream), group, ids...).Err()
}

func (a *adapter) XGroupCreateMkStream(ctx context.Context, stream, group, start string) error {
	return a.conn.XGroupCreateMkStream(ctx, a.k(stream), group, start).Err()
}

func (a *adapter) XLen(ctx context.Context, stream string) (int64, error) {
	return a.conn.XLen(ctx, a.k(stream)).Result()
}

func (a *adapter) XTrimApprox(ctx context.Context, stream string, maxLen int64) error {
	return a.conn.XTrimMaxLenApprox(ctx, a.k(stream), maxLen, 0).Err()
}

func (a *adapter) XPending(ctx context.Context, stream, group string) (*goredis.XPending, error) {
	return a.conn.XPending(ctx, a.k(stream), group).Result()
}

func (a *adapter) XPendingExt(ctx context.Context, stream, group, start, end string, count int64) ([]goredis.XPendingExt, error) {
	return a.conn.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: a.k(stream),
		Group:  group,
		Start:  start,
		End:    end,
		Count:  count,
	}).Result()
}

func (a *adapter) XClaim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]StreamMessage, error) {
	res, err := a.conn.XClaim(ctx, &goredis.XClaimArgs{
		Stream:   a.k(stream),
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}
	return messages(res), nil
}

func messages(in []goredis.XMessage) []StreamMessage {
	out := make([]StreamMessage, 0, len(in))
	for _, m := range in {
		out = append(out, StreamMessage{ID: m.ID, Values: m.Values})
	}
	return out
}
