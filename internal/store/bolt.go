package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	recordsBucket = []byte("questions")
	indexBucket   = []byte("questions_by_text")
)

// boltRecord is the value stored under a big-endian id key.
type boltRecord struct {
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Frequency int    `json:"frequency"`
	Embedding []byte `json:"embedding"`
}

// BoltStore keeps records in a single bbolt file. A second bucket maps
// question text to id to enforce uniqueness.
type BoltStore struct {
	db         *bolt.DB
	dimensions int
}

var _ Store = (*BoltStore)(nil)

func OpenBolt(path string, dimensions int) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bolt")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{recordsBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create buckets")
	}
	return &BoltStore{db: db, dimensions: dimensions}, nil
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))
	return k
}

func (s *BoltStore) All(ctx context.Context) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(recordsBucket).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var br boltRecord
			if err := json.Unmarshal(v, &br); err != nil {
				return errors.Wrapf(err, "decode record %d", binary.BigEndian.Uint64(k))
			}
			out = append(out, Record{
				ID:        int64(binary.BigEndian.Uint64(k)),
				Question:  br.Question,
				Answer:    br.Answer,
				Frequency: br.Frequency,
				Embedding: DecodeEmbedding(br.Embedding),
			})
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) Insert(ctx context.Context, rec *Record) error {
	if err := checkDimensions(rec.Embedding, s.dimensions); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(recordsBucket)
		index := tx.Bucket(indexBucket)

		if existing := index.Get([]byte(rec.Question)); existing != nil {
			id := int64(binary.BigEndian.Uint64(existing))
			stored, err := incrementIn(records, id)
			if err != nil {
				return err
			}
			*rec = stored
			return nil
		}

		seq, err := records.NextSequence()
		if err != nil {
			return errors.Wrap(err, "next id")
		}
		br := boltRecord{
			Question:  rec.Question,
			Answer:    rec.Answer,
			Frequency: 1,
			Embedding: EncodeEmbedding(rec.Embedding),
		}
		data, err := json.Marshal(br)
		if err != nil {
			return err
		}
		key := idKey(int64(seq))
		if err := records.Put(key, data); err != nil {
			return err
		}
		if err := index.Put([]byte(rec.Question), key); err != nil {
			return err
		}
		rec.ID = int64(seq)
		rec.Frequency = 1
		return nil
	})
}

func (s *BoltStore) IncrementFrequency(ctx context.Context, id int64) (int, error) {
	var freq int
	err := s.db.Update(func(tx *bolt.Tx) error {
		stored, err := incrementIn(tx.Bucket(recordsBucket), id)
		if err != nil {
			return err
		}
		freq = stored.Frequency
		return nil
	})
	return freq, err
}

func incrementIn(records *bolt.Bucket, id int64) (Record, error) {
	key := idKey(id)
	v := records.Get(key)
	if v == nil {
		return Record{}, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	var br boltRecord
	if err := json.Unmarshal(v, &br); err != nil {
		return Record{}, errors.Wrapf(err, "decode record %d", id)
	}
	br.Frequency++
	data, err := json.Marshal(br)
	if err != nil {
		return Record{}, err
	}
	if err := records.Put(key, data); err != nil {
		return Record{}, err
	}
	return Record{
		ID:        id,
		Question:  br.Question,
		Answer:    br.Answer,
		Frequency: br.Frequency,
		Embedding: DecodeEmbedding(br.Embedding),
	}, nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(recordsBucket) == nil {
			return errors.New("questions bucket missing")
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
