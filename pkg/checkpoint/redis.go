// Redis-backed checkpoint persistence for verification jobs running on
// machines with no shared filesystem.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis checkpoint backend.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address string

	// Password for Redis authentication (optional)
	Password string

	// Database number to use (default: 0)
	Database int

	// Prefix is prepended to all checkpoint keys
	Prefix string

	// TTL is the time-to-live for checkpoint keys (0 = no expiration)
	TTL time.Duration

	// Timeout for Redis operations
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "tracecheck:checkpoints:",
		TTL:     24 * time.Hour,
		Timeout: 5 * time.Second,
	}
}

// RedisBackend stores checkpoints in Redis.
type RedisBackend struct {
	cfg    RedisConfig
	client *redis.Client
}

// NewRedisBackend creates a new Redis checkpoint backend.
func NewRedisBackend(cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBackend{cfg: cfg, client: client}, nil
}

// key returns the Redis key for a checkpoint ID.
func (b *RedisBackend) key(id string) string {
	return b.cfg.Prefix + id
}

// logIndexKey returns the key for the log path index.
func (b *RedisBackend) logIndexKey(logPath string) string {
	return b.cfg.Prefix + "index:log:" + sanitizeKey(logPath)
}

// sanitizeKey removes characters that may cause issues in Redis keys.
func sanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// Save implements Backend.
func (b *RedisBackend) Save(ctx context.Context, cp *Checkpoint) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cp.mu.Lock()
	data, err := json.Marshal(cp)
	cp.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.key(cp.ID), data, b.cfg.TTL)
	if cp.Phase != PhaseComplete {
		pipe.Set(ctx, b.logIndexKey(cp.LogPath), cp.ID, b.cfg.TTL)
	} else {
		pipe.Del(ctx, b.logIndexKey(cp.LogPath))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to Redis: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, id string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	data, err := b.client.Get(ctx, b.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, fmt.Errorf("failed to load checkpoint from Redis: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if cp.CheckerState == nil {
		cp.CheckerState = make(map[string]json.RawMessage)
	}
	return &cp, nil
}

// FindByLog implements Backend.
func (b *RedisBackend) FindByLog(ctx context.Context, logPath string) (*Checkpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	id, err := b.client.Get(ctx, b.logIndexKey(logPath)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return b.Load(ctx, id)
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	cp, err := b.Load(ctx, id)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.Del(ctx, b.key(id))
	if cp != nil {
		pipe.Del(ctx, b.logIndexKey(cp.LogPath))
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

// Close releases the Redis connection.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
