package store

import (
	"context"
	"slices"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	redisSeqKey    = "qa:seq"
	redisIndexKey  = "qa:idx"
	redisRecPrefix = "qa:rec:"
)

// insertScript upserts by question text. Returns {id, frequency}.
var insertScript = redis.NewScript(`
local id = redis.call("HGET", KEYS[1], ARGV[1])
if id then
    local freq = redis.call("HINCRBY", ARGV[4] .. id, "freq", 1)
    return {tonumber(id), freq}
end
id = redis.call("INCR", KEYS[2])
redis.call("HSET", KEYS[1], ARGV[1], id)
redis.call("HSET", ARGV[4] .. id, "q", ARGV[1], "a", ARGV[2], "freq", 1, "vec", ARGV[3])
return {id, 1}
`)

// incrScript returns -1 when the record does not exist.
var incrScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return -1
end
return redis.call("HINCRBY", KEYS[1], "freq", 1)
`)

// RedisStore keeps each record in a hash; qa:idx maps question text to id.
type RedisStore struct {
	rdb        *redis.Client
	dimensions int
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(rdb *redis.Client, dimensions int) *RedisStore {
	return &RedisStore{rdb: rdb, dimensions: dimensions}
}

func recKey(id int64) string {
	return redisRecPrefix + strconv.FormatInt(id, 10)
}

func (s *RedisStore) All(ctx context.Context) ([]Record, error) {
	idx, err := s.rdb.HVals(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load index")
	}
	if len(idx) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(idx))
	for _, v := range idx {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "bad id %q in index", v)
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, recKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "load records")
	}

	out := make([]Record, 0, len(ids))
	for i, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue
		}
		freq, _ := strconv.Atoi(data["freq"])
		out = append(out, Record{
			ID:        ids[i],
			Question:  data["q"],
			Answer:    data["a"],
			Frequency: freq,
			Embedding: DecodeEmbedding([]byte(data["vec"])),
		})
	}
	return out, nil
}

func (s *RedisStore) Insert(ctx context.Context, rec *Record) error {
	if err := checkDimensions(rec.Embedding, s.dimensions); err != nil {
		return err
	}
	res, err := insertScript.Run(ctx, s.rdb,
		[]string{redisIndexKey, redisSeqKey},
		rec.Question, rec.Answer, EncodeEmbedding(rec.Embedding), redisRecPrefix,
	).Int64Slice()
	if err != nil {
		return errors.Wrap(err, "insert question")
	}
	if len(res) != 2 {
		return errors.Errorf("insert question: unexpected reply %v", res)
	}
	rec.ID = res[0]
	rec.Frequency = int(res[1])
	if rec.Frequency > 1 {
		// existing question: report the stored answer, like the other drivers
		answer, err := s.rdb.HGet(ctx, recKey(rec.ID), "a").Result()
		if err != nil {
			return errors.Wrap(err, "reload question")
		}
		rec.Answer = answer
	}
	return nil
}

func (s *RedisStore) IncrementFrequency(ctx context.Context, id int64) (int, error) {
	freq, err := incrScript.Run(ctx, s.rdb, []string{recKey(id)}).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "increment frequency")
	}
	if freq < 0 {
		return 0, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	return int(freq), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close is a no-op; the redis client is owned by the caller.
func (s *RedisStore) Close() error {
	return nil
}
