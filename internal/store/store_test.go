package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-gateway/internal/config"
	"qa-gateway/internal/redistest"
)

const testDims = 4

func vec(vals ...float32) []float32 { return vals }

// openStores returns one instance of every driver.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := map[string]Store{}

	sq, err := OpenSQLite(filepath.Join(dir, "qa.db"), testDims)
	require.NoError(t, err)
	stores["sqlite"] = sq

	bs, err := OpenBolt(filepath.Join(dir, "qa.bolt"), testDims)
	require.NoError(t, err)
	stores["bolt"] = bs

	rdb, _ := redistest.New(t)
	stores["redis"] = NewRedisStore(rdb, testDims)

	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStoreInsertAndAll(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			all, err := s.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)

			first := &Record{Question: "What is Go?", Answer: "A language.", Embedding: vec(1, 0, 0, 0)}
			require.NoError(t, s.Insert(ctx, first))
			assert.NotZero(t, first.ID)
			assert.Equal(t, 1, first.Frequency)

			second := &Record{Question: "What is Rust?", Answer: "Another language.", Embedding: vec(0, 1, 0, 0.5)}
			require.NoError(t, s.Insert(ctx, second))
			assert.NotEqual(t, first.ID, second.ID)

			all, err = s.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, first.ID, all[0].ID)
			assert.Equal(t, "What is Go?", all[0].Question)
			assert.Equal(t, "A language.", all[0].Answer)
			assert.Equal(t, 1, all[0].Frequency)
			assert.Equal(t, vec(1, 0, 0, 0), all[0].Embedding)
			assert.Equal(t, vec(0, 1, 0, 0.5), all[1].Embedding)
		})
	}
}

func TestStoreInsertDuplicateQuestionIncrements(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			orig := &Record{Question: "same", Answer: "first answer", Embedding: vec(1, 1, 1, 1)}
			require.NoError(t, s.Insert(ctx, orig))

			dup := &Record{Question: "same", Answer: "second answer", Embedding: vec(1, 1, 1, 1)}
			require.NoError(t, s.Insert(ctx, dup))
			assert.Equal(t, orig.ID, dup.ID)
			assert.Equal(t, 2, dup.Frequency)
			assert.Equal(t, "first answer", dup.Answer)

			all, err := s.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 2, all[0].Frequency)
			assert.Equal(t, "first answer", all[0].Answer)
		})
	}
}

func TestStoreIncrementFrequency(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			rec := &Record{Question: "q", Answer: "a", Embedding: vec(0, 0, 1, 0)}
			require.NoError(t, s.Insert(ctx, rec))

			freq, err := s.IncrementFrequency(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, freq)

			freq, err = s.IncrementFrequency(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, 3, freq)

			_, err = s.IncrementFrequency(ctx, rec.ID+1000)
			assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
		})
	}
}

func TestStoreRejectsWrongDimensions(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Insert(context.Background(), &Record{Question: "q", Answer: "a", Embedding: vec(1, 2)})
			assert.True(t, errors.Is(err, ErrDimensionMismatch), "got %v", err)

			all, err := s.All(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestStoreConcurrentIncrements(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := &Record{Question: "busy", Answer: "a", Embedding: vec(1, 0, 1, 0)}
			require.NoError(t, s.Insert(ctx, rec))

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := s.IncrementFrequency(ctx, rec.ID)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			all, err := s.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, 11, all[0].Frequency)
		})
	}
}

func TestStorePing(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, s.Ping(context.Background()))
		})
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "a.db")}, testDims, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	s.Close()

	s, err = Open(config.DatabaseConfig{Driver: "BOLT", Path: filepath.Join(dir, "a.bolt")}, testDims, nil)
	require.NoError(t, err)
	assert.IsType(t, &BoltStore{}, s)
	s.Close()

	_, err = Open(config.DatabaseConfig{Driver: "redis"}, testDims, nil)
	assert.Error(t, err)

	rdb, _ := redistest.New(t)
	s, err = Open(config.DatabaseConfig{Driver: "redis"}, testDims, rdb)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)

	_, err = Open(config.DatabaseConfig{Driver: "csv"}, testDims, nil)
	assert.Error(t, err)
}

func TestEmbeddingCodec(t *testing.T) {
	in := vec(0, -1.5, 3.25, 1e-7)
	b := EncodeEmbedding(in)
	assert.Len(t, b, 16)
	assert.Equal(t, in, DecodeEmbedding(b))

	// little-endian float32, same layout as numpy float32 tobytes()
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, EncodeEmbedding(vec(1)))

	assert.Equal(t, vec(1), DecodeEmbedding([]byte{0x00, 0x00, 0x80, 0x3f, 0xff}))
	assert.Empty(t, DecodeEmbedding(nil))
}
