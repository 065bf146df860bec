package store

import (
	"context"
	"net/url"

	"github.com/redis/go-redis/v9"

	"github.com/555Russich/18.fl-auto-response/internal/types"
)

// RedisStore keeps ids in a Redis set.
type RedisStore struct {
	rdb *redis.Client
	key string
}

// OpenRedis connects to the server in dsn. The optional "key" query parameter names the set.
func OpenRedis(ctx context.Context, dsn string) (*RedisStore, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, &Error{Backend: "redis", Message: "invalid url", Cause: err}
	}
	q := u.Query()
	key := q.Get("key")
	if key == "" {
		key = DefaultTable
	}
	q.Del("key")
	u.RawQuery = q.Encode()

	opt, err := redis.ParseURL(u.String())
	if err != nil {
		return nil, &Error{Backend: "redis", Message: "invalid url", Cause: err}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, &Error{Backend: "redis", Message: "failed to ping server", Cause: err}
	}
	return &RedisStore{rdb: rdb, key: key}, nil
}

// Has reports whether id is a member of the set.
func (s *RedisStore) Has(ctx context.Context, id types.RecordID) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, s.key, id.String()).Result()
	if err != nil {
		return false, &Error{Backend: "redis", Message: "failed to check id", Cause: err}
	}
	return ok, nil
}

// Add adds id to the set.
func (s *RedisStore) Add(ctx context.Context, id types.RecordID) error {
	if err := s.rdb.SAdd(ctx, s.key, id.String()).Err(); err != nil {
		return &Error{Backend: "redis", Message: "failed to add id", Cause: err}
	}
	return nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
