package upstream

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryTransport retries network errors, 429 and 5xx responses with
// exponential backoff (100ms, 200ms, 400ms, ...).
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	BaseDelay  time.Duration
	Log        logrus.FieldLogger
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	delay := t.BaseDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	// the body is replayed on every attempt
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	for i := 0; ; i++ {
		attempt := req.Clone(req.Context())
		if bodyBytes != nil {
			attempt.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := base.RoundTrip(attempt)
		if !retryable(resp, err) || i >= t.MaxRetries {
			return resp, err
		}

		wait := delay << i
		if t.Log != nil {
			t.Log.WithFields(logrus.Fields{
				"attempt": i + 1,
				"wait":    wait,
				"status":  statusOf(resp),
			}).WithError(err).Warn("upstream request failed, retrying")
		}
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}
}

func retryable(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
