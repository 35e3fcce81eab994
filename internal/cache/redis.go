package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MyAiAd/whisper-service/internal/config"
	"github.com/MyAiAd/whisper-service/internal/transcription"
)

// RedisStore caches serialized results in Redis with a TTL. Every
// operation runs under its own short timeout so a slow or dead backend
// delays a request by at most that much.
type RedisStore struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
	logger    *slog.Logger
}

// New selects the cache implementation once at startup. Caching disabled
// in config, a malformed Redis URL, or an unreachable backend all yield
// the inert store; the choice is never revisited at request time.
func New(cfg config.CacheConfig, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Enabled {
		logger.Info("result cache disabled by configuration")
		return NewNoopStore()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("invalid redis URL, caching disabled",
			"redis_url", cfg.MaskedRedisURL(),
			"error", err)
		return NewNoopStore()
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetOpTimeout())
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, caching disabled",
			"redis_url", cfg.MaskedRedisURL(),
			"error", err)
		client.Close()
		return NewNoopStore()
	}

	logger.Info("result cache connected",
		"redis_url", cfg.MaskedRedisURL(),
		"ttl_seconds", cfg.TTL)

	return &RedisStore{
		client:    client,
		ttl:       cfg.GetTTL(),
		opTimeout: cfg.GetOpTimeout(),
		logger:    logger,
	}
}

// Lookup returns the cached result for the given audio content. The hit is
// stamped with the retrieval time; the stored entry is not rewritten.
func (s *RedisStore) Lookup(ctx context.Context, rawAudio []byte) (*transcription.Result, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	key := Key(rawAudio)
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("cache lookup failed", "error", err)
		return nil, false
	}

	var result transcription.Result
	if err := json.Unmarshal(data, &result); err != nil {
		// Unreadable entry, evict it so the key can be rewritten
		s.logger.Warn("cache entry corrupt, evicting", "key", key, "error", err)
		s.client.Del(ctx, key)
		return nil, false
	}

	result.CacheHit = true
	result.CacheHitAt = time.Now().UTC().Format(time.RFC3339)

	return &result, true
}

// Store writes the result under the content key with the configured TTL
func (s *RedisStore) Store(ctx context.Context, rawAudio []byte, result *transcription.Result) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	entry := *result
	entry.CachedAt = time.Now().UTC().Format(time.RFC3339)
	entry.CacheHit = false
	entry.CacheHitAt = ""

	data, err := json.Marshal(&entry)
	if err != nil {
		s.logger.Warn("cache store failed to encode result", "error", err)
		return false
	}

	if err := s.client.Set(ctx, Key(rawAudio), data, s.ttl).Err(); err != nil {
		s.logger.Warn("cache store failed", "error", err)
		return false
	}

	return true
}

// Clear removes every cached transcription and returns the count removed.
// Keys are discovered with SCAN so a large cache never blocks the backend
// the way KEYS would.
func (s *RedisStore) Clear(ctx context.Context) int {
	removed := 0
	var cursor uint64

	for {
		opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
		keys, next, err := s.client.Scan(opCtx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			cancel()
			s.logger.Warn("cache clear scan failed", "error", err)
			return removed
		}

		if len(keys) > 0 {
			deleted, err := s.client.Del(opCtx, keys...).Result()
			if err != nil {
				cancel()
				s.logger.Warn("cache clear delete failed", "error", err)
				return removed
			}
			removed += int(deleted)
		}
		cancel()

		cursor = next
		if cursor == 0 {
			break
		}
	}

	s.logger.Info("cache cleared", "entries_removed", removed)
	return removed
}

// Close releases the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
