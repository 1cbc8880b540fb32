// Package tokenstore keeps platform credentials outside the process so a
// restarted observer can authorize without a token in its config.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"commission-observer/src/logger"
	"commission-observer/src/models"

	"github.com/redis/go-redis/v9"
)

// -----------------------------------------------------------------------------

// Connect builds a client from a redis:// URL or a bare host:port.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// -----------------------------------------------------------------------------
// RedisTokenStore
// -----------------------------------------------------------------------------

// RedisTokenStore stores one JSON credentials document under a single key.
type RedisTokenStore struct {
	Logger *logger.Logger
	client *redis.Client
	key    string
	now    func() time.Time
}

func NewRedisTokenStore(cfg models.MTokenStoreConfig, log *logger.Logger) (*RedisTokenStore, error) {
	client, err := Connect(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisTokenStoreWithClient(client, cfg.Key, log), nil
}

func NewRedisTokenStoreWithClient(client *redis.Client, key string, log *logger.Logger) *RedisTokenStore {
	return &RedisTokenStore{
		Logger: log,
		client: client,
		key:    key,
		now:    time.Now,
	}
}

// -----------------------------------------------------------------------------

func (s *RedisTokenStore) Load(ctx context.Context) (*models.MStoredCredentials, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var creds models.MStoredCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		// A corrupt entry is as good as none; the next authorize overwrites it.
		s.Logger.Warning("Ignoring unreadable credentials at %s: %v", s.key, err)
		return nil, nil
	}
	if creds.AccessToken == "" {
		return nil, nil
	}
	return &creds, nil
}

// -----------------------------------------------------------------------------

func (s *RedisTokenStore) Save(ctx context.Context, creds models.MStoredCredentials) error {
	if creds.AccessToken == "" {
		return errors.New("refusing to store empty token")
	}
	if creds.SavedAt == 0 {
		creds.SavedAt = s.now().Unix()
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	s.Logger.Debug("Stored credentials for %s", creds.LoginID)
	return nil
}

// -----------------------------------------------------------------------------

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *RedisTokenStore) Close() error {
	return s.client.Close()
}
