package ai

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"qa-gateway/internal/metrics"
	"qa-gateway/internal/store"
	"qa-gateway/internal/upstream"
)

// Source tags reported alongside every answer.
const (
	SourceDatabase = "Database"
	SourceError    = "Error"
)

// Fixed replies for a failed upstream call. They are never cached.
const (
	MsgNotConfigured = "Sorry, the application is not configured with an API key."
	MsgUpstreamError = "Sorry, there was an error communicating with the AI service."
)

var ErrEmptyQuestion = errors.New("no question provided")

// Completer answers a question from the paid upstream API.
type Completer interface {
	Complete(ctx context.Context, question string) (string, error)
}

type Options struct {
	SimilarityThreshold float32
	FrequencyThreshold  int
	UpstreamSource      string
}

// Gateway decides between a cached answer and a fresh upstream one.
type Gateway struct {
	store    store.Store
	embedder Embedder
	upstream Completer
	exact    AnswerCache
	metrics  metrics.Metrics
	log      logrus.FieldLogger
	opts     Options
}

type Answer struct {
	Text       string  `json:"answer"`
	Source     string  `json:"source"`
	Similarity float32 `json:"-"`
}

// Match is the most similar stored record above the threshold.
type Match struct {
	store.Record
	Similarity float32
}

type Stats struct {
	Records             int     `json:"records"`
	TotalFrequency      int     `json:"total_frequency"`
	Promoted            int     `json:"promoted"`
	SimilarityThreshold float32 `json:"similarity_threshold"`
	FrequencyThreshold  int     `json:"frequency_threshold"`
}

// NewGateway wires the pipeline. exact may be nil.
func NewGateway(st store.Store, emb Embedder, up Completer, exact AnswerCache, m metrics.Metrics, log logrus.FieldLogger, opts Options) *Gateway {
	if opts.UpstreamSource == "" {
		opts.UpstreamSource = "API"
	}
	return &Gateway{
		store:    st,
		embedder: emb,
		upstream: up,
		exact:    exact,
		metrics:  m,
		log:      log.WithField("component", "gateway"),
		opts:     opts,
	}
}

// Ask returns a cached answer when a similar question has been asked at
// least FrequencyThreshold times, otherwise asks upstream and records the
// question. An upstream failure is reported as an Error-sourced answer, not
// as an error; errors are reserved for embedding and storage failures.
func (g *Gateway) Ask(ctx context.Context, question string) (Answer, error) {
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	if g.exact != nil {
		text, ok, err := g.exact.Get(ctx, question)
		if err != nil {
			g.log.WithError(err).Warn("exact cache lookup failed")
		} else if ok {
			g.log.Debug("exact cache hit")
			g.metrics.IncrementExactHit()
			return g.answered(Answer{Text: text, Source: SourceDatabase, Similarity: 1}), nil
		}
	}

	vec, err := g.embedder.Embed(ctx, question)
	if err != nil {
		return Answer{}, errors.Wrap(err, "embed question")
	}

	match, err := g.FindSimilar(ctx, vec)
	if err != nil {
		return Answer{}, err
	}
	g.metrics.IncrementLookup(match != nil)

	if match != nil && match.Frequency >= g.opts.FrequencyThreshold {
		g.log.WithFields(logrus.Fields{
			"id":         match.ID,
			"similarity": match.Similarity,
			"frequency":  match.Frequency,
			"cached":     truncate(match.Question, 50),
		}).Info("frequent similar question found")

		if g.exact != nil {
			if err := g.exact.Set(ctx, question, match.Answer); err != nil {
				g.log.WithError(err).Warn("exact cache store failed")
			}
		}
		return g.answered(Answer{Text: match.Answer, Source: SourceDatabase, Similarity: match.Similarity}), nil
	}

	g.log.Info("no frequent match, querying upstream")
	start := time.Now()
	text, err := g.upstream.Complete(ctx, question)
	g.metrics.ObserveUpstreamDuration(time.Since(start).Seconds())
	if err != nil {
		g.metrics.IncrementUpstreamErrors()
		g.log.WithError(err).Error("upstream call failed")
		return g.answered(Answer{Text: failureMessage(err), Source: SourceError}), nil
	}

	g.remember(ctx, question, text, vec, match)

	out := Answer{Text: text, Source: g.opts.UpstreamSource}
	if match != nil {
		out.Similarity = match.Similarity
	}
	return g.answered(out), nil
}

// remember bumps the matched record or inserts a new one. Failures are
// logged; the caller already has a valid answer.
func (g *Gateway) remember(ctx context.Context, question, answer string, vec []float32, match *Match) {
	if match != nil {
		freq, err := g.store.IncrementFrequency(ctx, match.ID)
		if err != nil {
			g.log.WithError(err).WithField("id", match.ID).Warn("frequency update failed")
			return
		}
		g.log.WithFields(logrus.Fields{"id": match.ID, "frequency": freq}).Info("updated frequency")
		return
	}

	rec := &store.Record{Question: question, Answer: answer, Embedding: vec}
	if err := g.store.Insert(ctx, rec); err != nil {
		g.log.WithError(err).Warn("storing new question failed")
		return
	}
	g.log.WithFields(logrus.Fields{"id": rec.ID, "frequency": rec.Frequency}).Info("added new question")
}

// FindSimilar scans the records in id order and returns the first one whose
// cosine similarity is strictly above the threshold, or nil.
func (g *Gateway) FindSimilar(ctx context.Context, vec []float32) (*Match, error) {
	records, err := g.store.All(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load records")
	}

	var found *Match
	skipped := 0
	norm := Norm(vec)
	for i := range records {
		if len(records[i].Embedding) != len(vec) {
			skipped++
			continue
		}
		if sim := cosine(vec, records[i].Embedding, norm); sim > g.opts.SimilarityThreshold {
			found = &Match{Record: records[i], Similarity: sim}
			break
		}
	}
	if skipped > 0 {
		g.log.WithField("skipped", skipped).Warn("records with mismatched embedding dimensions")
	}
	return found, nil
}

func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	records, err := g.store.All(ctx)
	if err != nil {
		return Stats{}, errors.Wrap(err, "load records")
	}
	s := Stats{
		Records:             len(records),
		SimilarityThreshold: g.opts.SimilarityThreshold,
		FrequencyThreshold:  g.opts.FrequencyThreshold,
	}
	for _, r := range records {
		s.TotalFrequency += r.Frequency
		if r.Frequency >= g.opts.FrequencyThreshold {
			s.Promoted++
		}
	}
	return s, nil
}

func (g *Gateway) answered(a Answer) Answer {
	g.metrics.IncrementAnswers(a.Source)
	return a
}

func failureMessage(err error) string {
	if errors.Is(err, upstream.ErrNotConfigured) {
		return MsgNotConfigured
	}
	return MsgUpstreamError
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
