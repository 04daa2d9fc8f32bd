package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-gateway/internal/config"
)

func completionBody(content string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"openai/gpt-oss-120b",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":` + quote(content) + `},"finish_reason":"stop"}]}`
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func testConfig(url string) config.UpstreamConfig {
	return config.UpstreamConfig{
		BaseURL:     url,
		APIKey:      "gsk_test",
		Model:       "openai/gpt-oss-120b",
		Temperature: 0.7,
		Timeout:     5 * time.Second,
		MaxRetries:  0,
	}
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestCompleteSendsQuestion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer gsk_test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-oss-120b", body["model"])
		assert.Equal(t, 0.7, body["temperature"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 1)
		msg := messages[0].(map[string]any)
		assert.Equal(t, "user", msg["role"])
		assert.Equal(t, "What is a goroutine?", msg["content"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("A lightweight thread."))
	}))
	defer server.Close()

	c := New(testConfig(server.URL), nullLogger())
	answer, err := c.Complete(context.Background(), "What is a goroutine?")
	require.NoError(t, err)
	assert.Equal(t, "A lightweight thread.", answer)
}

func TestCompleteNotConfigured(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.APIKey = ""

	_, err := New(cfg, nullLogger()).Complete(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestCompleteAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "Invalid API Key"}}`)
	}))
	defer server.Close()

	_, err := New(testConfig(server.URL), nullLogger()).Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`)
	}))
	defer server.Close()

	_, err := New(testConfig(server.URL), nullLogger()).Complete(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("third time lucky"))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.MaxRetries = 3
	answer, err := New(cfg, nullLogger()).Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", answer)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPingReturnsRawJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gemma-7b-it", body["model"])
		_, hasTemp := body["temperature"]
		assert.False(t, hasTemp)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody("pong"))
	}))
	defer server.Close()

	raw, err := New(testConfig(server.URL), nullLogger()).Ping(context.Background(), "ping", "gemma-7b-it")
	require.NoError(t, err)
	assert.True(t, strings.Contains(raw, `"pong"`))
}

func TestStatusCodeOfPlainError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
	assert.Equal(t, 0, StatusCode(nil))
}
