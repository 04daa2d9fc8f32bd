package upstream

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"qa-gateway/internal/config"
)

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("upstream API key not configured")
	ErrEmptyResponse = errors.New("upstream returned no choices")
)

// Client talks to an OpenAI-compatible chat completions API (Groq by default).
type Client struct {
	client      openai.Client
	model       string
	temperature float64
	configured  bool
	log         logrus.FieldLogger
}

func New(cfg config.UpstreamConfig, log logrus.FieldLogger) *Client {
	log = log.WithField("component", "upstream")

	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &RetryTransport{
			Base:       http.DefaultTransport,
			MaxRetries: cfg.MaxRetries,
			Log:        log,
		},
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}

	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		configured:  cfg.APIKey != "",
		log:         log,
	}
}

// Complete sends question as a single user message and returns the first
// choice's content.
func (c *Client) Complete(ctx context.Context, question string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(question),
		},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", errors.Wrap(err, "chat completion")
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Ping sends prompt to model (the configured model when empty) and returns
// the raw JSON response body. It is a connectivity check for operators.
func (c *Client) Ping(ctx context.Context, prompt, model string) (string, error) {
	if !c.configured {
		return "", ErrNotConfigured
	}
	if model == "" {
		model = c.model
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "ping")
	}
	c.log.WithFields(logrus.Fields{"model": model, "elapsed": time.Since(start)}).Debug("ping ok")
	return resp.RawJSON(), nil
}

// StatusCode extracts the HTTP status from an API error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
