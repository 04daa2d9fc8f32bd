package store

import (
	"context"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// question is the row layout of the questions table.
type question struct {
	ID        int64  `gorm:"primaryKey"`
	Question  string `gorm:"type:text;not null;uniqueIndex"`
	Answer    string `gorm:"type:text;not null"`
	Frequency int    `gorm:"not null;default:1"`
	Embedding []byte `gorm:"not null"`
}

func (question) TableName() string { return "questions" }

func (q question) record() Record {
	return Record{
		ID:        q.ID,
		Question:  q.Question,
		Answer:    q.Answer,
		Frequency: q.Frequency,
		Embedding: DecodeEmbedding(q.Embedding),
	}
}

// SQLiteStore keeps records in a single SQLite file through gorm.
type SQLiteStore struct {
	db         *gorm.DB
	dimensions int
}

var _ Store = (*SQLiteStore)(nil)

func OpenSQLite(path string, dimensions int) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "db handle")
	}
	// one writer at a time; sqlite serializes writes anyway
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&question{}); err != nil {
		return nil, errors.Wrap(err, "automigrate questions")
	}
	return &SQLiteStore{db: db, dimensions: dimensions}, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Record, error) {
	var rows []question
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load questions")
	}
	out := make([]Record, len(rows))
	for i := range rows {
		out[i] = rows[i].record()
	}
	return out, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *Record) error {
	if err := checkDimensions(rec.Embedding, s.dimensions); err != nil {
		return err
	}
	row := question{
		Question:  rec.Question,
		Answer:    rec.Answer,
		Frequency: 1,
		Embedding: EncodeEmbedding(rec.Embedding),
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "question"}},
			DoUpdates: clause.Assignments(map[string]any{"frequency": gorm.Expr("frequency + 1")}),
		}).Create(&row).Error
		if err != nil {
			return errors.Wrap(err, "insert question")
		}

		var stored question
		if err := tx.Where("question = ?", rec.Question).First(&stored).Error; err != nil {
			return errors.Wrap(err, "reload question")
		}
		*rec = stored.record()
		return nil
	})
}

func (s *SQLiteStore) IncrementFrequency(ctx context.Context, id int64) (int, error) {
	var freq int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&question{}).Where("id = ?", id).
			UpdateColumn("frequency", gorm.Expr("frequency + ?", 1))
		if res.Error != nil {
			return errors.Wrap(res.Error, "increment frequency")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(ErrNotFound, "id %d", id)
		}
		return tx.Model(&question{}).Select("frequency").Where("id = ?", id).Scan(&freq).Error
	})
	return freq, err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "db handle")
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
