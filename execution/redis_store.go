package execution

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// redisKeyPrefix namespaces execution records inside a shared instance.
const redisKeyPrefix = "crewflow:execution:"

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	// TTL bounds how long finished records stay readable. Zero keeps them
	// forever.
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	PoolSize int           `yaml:"pool_size" json:"pool_size"`
}

// DefaultRedisConfig returns the default Redis store configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     "localhost:6379",
		TTL:      24 * time.Hour,
		PoolSize: 10,
	}
}

// RedisStore persists execution records in Redis as JSON values, so
// records survive restarts and are visible to every process sharing the
// instance.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, types.NewError(types.ErrInternal, "connect to redis").
			WithComponent("execution_store").WithCause(err)
	}

	logger.Info("redis execution store initialized", zap.String("addr", cfg.Addr))
	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "execution_store")),
	}, nil
}

func redisKey(id uuid.UUID) string {
	return redisKeyPrefix + id.String()
}

// Put serializes and stores the record.
func (s *RedisStore) Put(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal execution record").
			WithComponent("execution_store").WithCause(err)
	}
	if err := s.client.Set(ctx, redisKey(rec.ID), data, s.ttl).Err(); err != nil {
		s.logger.Error("execution record put failed", zap.String("id", rec.ID.String()), zap.Error(err))
		return types.NewError(types.ErrInternal, "store execution record").
			WithComponent("execution_store").WithCause(err)
	}
	return nil
}

// Get loads and deserializes the record.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	data, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFound(id)
	}
	if err != nil {
		s.logger.Error("execution record get failed", zap.String("id", id.String()), zap.Error(err))
		return nil, types.NewError(types.ErrInternal, "load execution record").
			WithComponent("execution_store").WithCause(err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, types.NewError(types.ErrInternal, "unmarshal execution record").
			WithComponent("execution_store").WithCause(err)
	}
	return &rec, nil
}

// Delete removes the record. Missing keys are ignored.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, redisKey(id)).Err(); err != nil {
		return types.NewError(types.ErrInternal, "delete execution record").
			WithComponent("execution_store").WithCause(err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
