// Package session keeps 3-D Secure sessions in Redis so the bank callback
// can land on any replica.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/gopos/infra/config"
	"github.com/mstgnz/gopos/provider/threed"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix   = "gopos:3d:"
	claimPrefix = "gopos:3d:claim:"
)

// redisClient is the subset of *redis.Client the store uses.
type redisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore implements threed.SessionStore. Sessions are stored as JSON
// and expire after ttl. Claims are separate SETNX keys with the same ttl.
type RedisStore struct {
	client redisClient
	ttl    time.Duration
}

var _ threed.SessionStore = (*RedisStore)(nil)

// NewRedisClient connects to the Redis server named in cfg.
func NewRedisClient(cfg *config.AppConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// NewRedisStore creates a store over client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func key(id string) string { return keyPrefix + id }

func (s *RedisStore) Save(ctx context.Context, sess *threed.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal 3D session: %w", err)
	}
	if err := s.client.Set(ctx, key(sess.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save 3D session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*threed.Session, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, threed.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load 3D session %s: %w", id, err)
	}
	var sess threed.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal 3D session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *RedisStore) Claim(ctx context.Context, id string) error {
	ok, err := s.client.SetNX(ctx, claimPrefix+id, "1", s.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim 3D session %s: %w", id, err)
	}
	if !ok {
		return threed.ClaimTaken(id)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id), claimPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete 3D session %s: %w", id, err)
	}
	return nil
}
