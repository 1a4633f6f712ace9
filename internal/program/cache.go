package program

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"pointsledger/internal/logger"
	"pointsledger/internal/metrics"
)

const cacheKey = "loyalty:program_config"

// CachedStore wraps a ConfigStore with a short-TTL redis cache. Ledger
// operations tolerate a slightly stale configuration, so a cache miss is the
// only path that touches the database. Save writes through and drops the key.
type CachedStore struct {
	store ConfigStore
	rdb   *redis.Client
	ttl   time.Duration
}

func NewCachedStore(store ConfigStore, rdb *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{store: store, rdb: rdb, ttl: ttl}
}

func (c *CachedStore) Load(ctx context.Context) (*Config, error) {
	data, err := c.rdb.Get(ctx, cacheKey).Bytes()
	if err == nil {
		var cfg Config
		if err := json.Unmarshal(data, &cfg); err == nil {
			metrics.RecordConfigCache("hit")
			cfg.Tiers = ParseTiers(cfg.TiersRaw)
			return &cfg, nil
		}
		logger.Warn("dropping undecodable cached program config")
	} else if err != redis.Nil {
		logger.WithError(err).Warn("program config cache read failed")
	}

	metrics.RecordConfigCache("miss")
	cfg, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cfg); err == nil {
		if err := c.rdb.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
			logger.WithError(err).Warn("program config cache write failed")
		}
	}

	return cfg, nil
}

func (c *CachedStore) Save(ctx context.Context, cfg *Config) error {
	if err := c.store.Save(ctx, cfg); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, cacheKey).Err(); err != nil {
		logger.WithError(err).Warn("program config cache invalidation failed")
	}
	return nil
}
