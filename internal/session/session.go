// Package session keeps the current user of a browser session behind a
// narrow get/set/clear interface.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/crm-dispatch/internal/errs"
	"github.com/nimasrn/crm-dispatch/internal/model"
	"github.com/nimasrn/crm-dispatch/pkg/redis"
)

const (
	DefaultTTL    = 7 * 24 * time.Hour
	DefaultCookie = "crm_session"
	Header        = "X-Session-Id"

	keyPrefix = "session:"
)

var ErrNoSession = errors.New("no active session")

type Store interface {
	Current(ctx context.Context, sid string) (*model.Session, error)
	// SetCurrent stores user under sid, or under a fresh id when sid is
	// empty, and returns the id used.
	SetCurrent(ctx context.Context, sid string, user model.SessionUser) (string, error)
	Clear(ctx context.Context, sid string) error
}

type RedisStore struct {
	rdb redis.Adapter
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb redis.Adapter, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Current(ctx context.Context, sid string) (*model.Session, error) {
	if sid == "" {
		return nil, ErrNoSession
	}
	raw, err := s.rdb.Get(ctx, keyPrefix+sid)
	if redis.IsNil(err) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, errs.Network(err, "session store unavailable")
	}

	var sess model.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errs.Decode(err, "corrupt session")
	}
	return &sess, nil
}

func (s *RedisStore) SetCurrent(ctx context.Context, sid string, user model.SessionUser) (string, error) {
	if user.Email == "" && user.ID == "" {
		return "", errs.Validation("session user needs an id or an email")
	}
	if sid == "" {
		sid = uuid.NewString()
	}

	raw, err := json.Marshal(model.Session{ID: sid, User: user, CreatedAt: s.now().UTC()})
	if err != nil {
		return "", err
	}
	if err := s.rdb.Set(ctx, keyPrefix+sid, raw, s.ttl); err != nil {
		return "", errs.Network(err, "session store unavailable")
	}
	return sid, nil
}

func (s *RedisStore) Clear(ctx context.Context, sid string) error {
	if sid == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, keyPrefix+sid); err != nil {
		return errs.Network(err, "session store unavailable")
	}
	return nil
}
