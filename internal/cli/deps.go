package cli

import (
	"context"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"qa-gateway/internal/ai"
	"qa-gateway/internal/config"
	"qa-gateway/internal/metrics"
	"qa-gateway/internal/store"
	"qa-gateway/internal/upstream"
	"qa-gateway/pkg/redis"
)

// components are the long-lived pieces shared by serve and stats.
type components struct {
	rdb     *goredis.Client
	store   store.Store
	metrics metrics.Metrics
	gateway *ai.Gateway
	log     logrus.FieldLogger
}

func (c *components) Close() {
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			c.log.WithError(err).Warn("closing store")
		}
	}
	if c.rdb != nil {
		if err := c.rdb.Close(); err != nil {
			c.log.WithError(err).Warn("closing redis")
		}
	}
}

// build opens redis (when configured) and the store, then wires the gateway.
func build(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*components, error) {
	c := &components{metrics: metrics.NewMetrics(), log: log}

	if cfg.RedisEnabled() {
		rdb, err := redis.NewClient(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		c.rdb = rdb
		log.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	}

	st, err := store.Open(cfg.Database, cfg.Embedding.Dimensions, c.rdb)
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "open store")
	}
	c.store = st
	log.WithFields(logrus.Fields{"driver": cfg.Database.Driver, "path": cfg.Database.Path}).Info("store ready")

	var exact ai.AnswerCache
	if c.rdb != nil && cfg.Cache.ExactTTL > 0 {
		exact = ai.NewRedisAnswerCache(c.rdb, cfg.Cache.ExactTTL)
	}

	if cfg.Upstream.APIKey == "" {
		log.Warn("GROK_API_KEY is not set; every uncached question will get the not-configured reply")
	}

	c.gateway = ai.NewGateway(
		st,
		ai.NewOpenAIEmbedder(cfg.Embedding),
		upstream.New(cfg.Upstream, log),
		exact,
		c.metrics,
		log,
		ai.Options{
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
			FrequencyThreshold:  cfg.Cache.FrequencyThreshold,
			UpstreamSource:      cfg.Upstream.SourceTag,
		},
	)
	return c, nil
}
