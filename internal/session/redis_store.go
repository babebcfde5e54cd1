// Package session provides a Redis backend for refresh sessions and,
// optionally, draft documents. It is used when TOKENFORGE_REDIS_URL is
// set; otherwise Postgres holds both.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tokenforge/api/internal/store"
)

const (
	refreshPrefix = "refresh:"
	draftPrefix   = "draft:"

	defaultRefreshTTL = 30 * 24 * time.Hour
	draftTTL          = 90 * 24 * time.Hour
)

// sessionRecord is the JSON payload stored per refresh token hash.
type sessionRecord struct {
	OwnerID      string    `json:"owner_id"`
	DisplayName  string    `json:"display_name"`
	IsRegistered bool      `json:"is_registered"`
	CreatedAt    time.Time `json:"created_at"`
}

// RedisStore keeps refresh sessions and draft documents in Redis. Draft
// keys carry a long TTL so abandoned anonymous wizards age out on their
// own.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) SaveRefreshSession(ctx context.Context, tokenHash, ownerID, displayName string, isRegistered bool, expiresAt time.Time) error {
	payload, err := json.Marshal(sessionRecord{
		OwnerID:      ownerID,
		DisplayName:  displayName,
		IsRegistered: isRegistered,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	if err := s.client.Set(ctx, refreshPrefix+tokenHash, payload, ttl).Err(); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *RedisStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.Owner, error) {
	payload, err := s.client.Get(ctx, refreshPrefix+tokenHash).Result()
	if err == redis.Nil {
		return store.Owner{}, fmt.Errorf("session not found or expired")
	}
	if err != nil {
		return store.Owner{}, fmt.Errorf("lookup refresh session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return store.Owner{}, fmt.Errorf("unmarshal session record: %w", err)
	}
	return store.Owner{
		ID:           rec.OwnerID,
		DisplayName:  rec.DisplayName,
		IsRegistered: rec.IsRegistered,
	}, nil
}

func (s *RedisStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if err := s.client.Del(ctx, refreshPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func draftKey(ownerID, namespaceKey string) string {
	return draftPrefix + ownerID + ":" + namespaceKey
}

// ReadRaw implements draft.Store. A missing key reads as nil bytes.
func (s *RedisStore) ReadRaw(ctx context.Context, ownerID, key string) ([]byte, error) {
	raw, err := s.client.Get(ctx, draftKey(ownerID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read draft document: %w", err)
	}
	return raw, nil
}

// WriteRaw implements draft.Store. Every write refreshes the TTL.
func (s *RedisStore) WriteRaw(ctx context.Context, ownerID, key string, raw []byte) error {
	if err := s.client.Set(ctx, draftKey(ownerID, key), raw, draftTTL).Err(); err != nil {
		return fmt.Errorf("write draft document: %w", err)
	}
	return nil
}
