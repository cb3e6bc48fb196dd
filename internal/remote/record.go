// Package remote implements the per-user record behind the session stores:
// a Redis hash per user whose fields mirror the stores' serialized columns.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Column names of the per-user record. Each column holds one store's
// serialized collection, written whole on every change.
const (
	ColumnScore        = "score"
	ColumnUsername     = "username"
	ColumnRoundIndexes = "currentRoundIndexes"
	ColumnProgress     = "progress"
	ColumnErrors       = "errors"
)

// Columns lists every record column.
var Columns = []string{ColumnScore, ColumnUsername, ColumnRoundIndexes, ColumnProgress, ColumnErrors}

var (
	// ErrDependencyMissing reports that the record client or the user
	// identity was unavailable at mutation time. Non-fatal: the local
	// mutation stands and the write is skipped.
	ErrDependencyMissing = errors.New("remote dependency missing")
	// ErrNotFound reports that a column holds no stored value.
	ErrNotFound = errors.New("no stored value")
)

// Record is the external key-value store holding one row per user.
type Record interface {
	Get(ctx context.Context, userID, column string) (string, error)
	Set(ctx context.Context, userID, column, value string) error
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisRecord is a Redis-backed Record with an explicit connect/close
// lifecycle held for the lifetime of the process.
type RedisRecord struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisRecord connects to Redis and verifies the connection.
func NewRedisRecord(cfg RedisConfig, logger zerolog.Logger) (*RedisRecord, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("connected to remote record store")
	return &RedisRecord{client: client, logger: logger}, nil
}

func userKey(userID string) string {
	return "user:" + userID
}

// Get reads one column of a user's record. Returns ErrNotFound when the
// column has never been written.
func (r *RedisRecord) Get(ctx context.Context, userID, column string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	val, err := r.client.HGet(ctx, userKey(userID), column).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read column %s: %w", column, err)
	}
	return val, nil
}

// Set writes one column of a user's record, replacing the previous value.
func (r *RedisRecord) Set(ctx context.Context, userID, column, value string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.HSet(ctx, userKey(userID), column, value).Err(); err != nil {
		return fmt.Errorf("write column %s: %w", column, err)
	}
	return nil
}

// Ping checks that the store is reachable.
func (r *RedisRecord) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (r *RedisRecord) Close() error {
	return r.client.Close()
}
