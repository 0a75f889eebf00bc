package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/expanse-labs/expander-go/internal/auth"
	"github.com/expanse-labs/expander-go/pkg/model"
	"github.com/expanse-labs/expander-go/pkg/utils"
)

// Store persists short-lived client state: ID token bundles shared across
// process runs and exporter sync checkpoints. Redis is the primary backend;
// a Postgres pool, when configured, mirrors exported events.
type Store interface {
	GetTokenBundle(ctx context.Context, key string) (*auth.TokenBundle, error)
	PutTokenBundle(ctx context.Context, key string, tb auth.TokenBundle, ttl time.Duration) error
	DeleteTokenBundle(ctx context.Context, key string) error
	GetCheckpoint(ctx context.Context, name string) (time.Time, error)
	SetCheckpoint(ctx context.Context, name string, ts time.Time) error
	InsertEvent(ctx context.Context, ev model.ExportedEvent) error
	HealthCheck(ctx context.Context) error
	Close() error
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first store with an optional Postgres event sink
// (pgURL may be empty).
func NewHybrid(redisAddr string, redisDB int, redisPass, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		DB:       redisDB,
		Password: redisPass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		logger.Info("store.postgres_connected",
			zap.String("dsn", utils.MaskDSN(pgURL)))
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// NewWithClient wraps an existing Redis client (used by tests with miniredis).
func NewWithClient(rdb *redis.Client, logger *zap.Logger) *HybridStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridStore{redis: rdb, logger: logger}
}

// GetTokenBundle returns the persisted token bundle, or nil when absent.
func (s *HybridStore) GetTokenBundle(ctx context.Context, key string) (*auth.TokenBundle, error) {
	raw, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get token bundle: %w", err)
	}
	var tb auth.TokenBundle
	if err := json.Unmarshal([]byte(raw), &tb); err != nil {
		return nil, fmt.Errorf("decode token bundle: %w", err)
	}
	return &tb, nil
}

// PutTokenBundle stores the bundle with the token's remaining lifetime as TTL.
func (s *HybridStore) PutTokenBundle(ctx context.Context, key string, tb auth.TokenBundle, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(tb)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

// DeleteTokenBundle removes a persisted bundle (forced logout).
func (s *HybridStore) DeleteTokenBundle(ctx context.Context, key string) error {
	return s.redis.Del(ctx, key).Err()
}

func checkpointKey(name string) string {
	return "expander:checkpoint:" + name
}

// GetCheckpoint returns the last recorded sync position for name, or the zero
// time when none exists.
func (s *HybridStore) GetCheckpoint(ctx context.Context, name string) (time.Time, error) {
	raw, err := s.redis.Get(ctx, checkpointKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get checkpoint %q: %w", name, err)
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkpoint %q: %w", name, err)
	}
	return ts, nil
}

// SetCheckpoint records the sync position for name.
func (s *HybridStore) SetCheckpoint(ctx context.Context, name string, ts time.Time) error {
	return s.redis.Set(ctx, checkpointKey(name), ts.UTC().Format(time.RFC3339), 0).Err()
}

// InsertEvent upserts an exported event into the Postgres sink. A nil pool is
// a no-op so the exporter works without a database.
func (s *HybridStore) InsertEvent(ctx context.Context, ev model.ExportedEvent) error {
	if s.PG == nil {
		return nil
	}

	const query = `
		INSERT INTO expander.t_event (
			s_id_event,
			s_event_type,
			s_event_time,
			s_business_unit,
			j_payload,
			s_source
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (s_id_event)
		DO UPDATE SET
			s_event_type = EXCLUDED.s_event_type,
			s_event_time = EXCLUDED.s_event_time,
			s_business_unit = EXCLUDED.s_business_unit,
			j_payload = EXCLUDED.j_payload,
			s_source = EXCLUDED.s_source;
	`

	_, err := s.PG.Exec(ctx, query,
		ev.ID,
		ev.EventType,
		ev.EventTime,
		ev.BusinessUnit,
		[]byte(ev.Payload),
		ev.Source,
	)
	if err != nil {
		s.logger.Warn("store.event_upsert_failed",
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return fmt.Errorf("upsert event %q: %w", ev.ID, err)
	}
	return nil
}

// HealthCheck pings both backends.
func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	return s.redis.Close()
}
