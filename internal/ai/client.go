package ai

import (
	"context"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkg/errors"

	"qa-gateway/internal/config"
)

var ErrEmptyEmbedding = errors.New("empty embedding result")

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint, e.g.
// Ollama serving all-minilm.
type OpenAIEmbedder struct {
	client     openai.Client
	model      string
	dimensions int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(cfg config.EmbeddingConfig) *OpenAIEmbedder {
	opts := []option.RequestOption{
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/") + "/"),
		option.WithMaxRetries(1),
	}
	// local servers accept any key
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = "none"
	}
	opts = append(opts, option.WithAPIKey(apiKey))

	return &OpenAIEmbedder{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create embedding")
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	raw := resp.Data[0].Embedding
	if e.dimensions > 0 && len(raw) != e.dimensions {
		return nil, errors.Errorf("embedding model %s returned %d dimensions, want %d", e.model, len(raw), e.dimensions)
	}

	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}
