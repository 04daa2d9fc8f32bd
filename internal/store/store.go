package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"qa-gateway/internal/config"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record is one cached question and its answer.
type Record struct {
	ID        int64
	Question  string
	Answer    string
	Frequency int
	Embedding []float32
}

// Store persists question records. Records are never deleted and their
// embeddings never change after insertion.
type Store interface {
	// All returns every record in insertion order.
	All(ctx context.Context) ([]Record, error)
	// Insert stores rec with frequency 1 and fills in its ID. If the question
	// text already exists, that record's frequency is incremented instead and
	// rec is updated to reflect the stored row.
	Insert(ctx context.Context, rec *Record) error
	// IncrementFrequency adds one to the record's frequency and returns the new value.
	IncrementFrequency(ctx context.Context, id int64) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver. rdb is only used by the
// redis driver.
func Open(cfg config.DatabaseConfig, dimensions int, rdb *redis.Client) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return OpenSQLite(cfg.Path, dimensions)
	case "bolt":
		return OpenBolt(cfg.Path, dimensions)
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis driver selected but no redis client configured")
		}
		return NewRedisStore(rdb, dimensions), nil
	default:
		return nil, errors.Errorf("unknown driver %q", cfg.Driver)
	}
}

func checkDimensions(vec []float32, dimensions int) error {
	if dimensions > 0 && len(vec) != dimensions {
		return errors.Wrapf(ErrDimensionMismatch, "got %d, want %d", len(vec), dimensions)
	}
	return nil
}
