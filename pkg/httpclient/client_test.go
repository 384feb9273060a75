package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retryingConfig(retries int) Config {
	return Config{
		Timeout:         5 * time.Second,
		MaxRetries:      retries,
		RetryWaitMin:    1 * time.Millisecond,
		RetryWaitMax:    5 * time.Millisecond,
		MaxConnsPerHost: 10,
	}
}

// send issues a request through d the way the admin API client does.
func send(ctx context.Context, d Doer, method, target, body string) (*http.Response, error) {
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return d.Do(ctx, req)
}

func TestDefaultConfig_RetriesOff(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.MaxRetries)
	assert.Equal(t, 16, cfg.MaxConnsPerHost)
}

func TestDo_SendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"Hello"}`, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := send(context.Background(), New(retryingConfig(0)), http.MethodPut, server.URL+"/blog/p1", `{"title":"Hello"}`)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDo_RetryPolicy(t *testing.T) {
	tests := []struct {
		name         string
		method       string
		statuses     []int
		wantStatus   int
		wantAttempts int32
	}{
		{"get retried through 503", http.MethodGet, []int{503, 503, 200}, 200, 3},
		{"post sent once", http.MethodPost, []int{502}, 502, 1},
		{"delete sent once", http.MethodDelete, []int{500}, 500, 1},
		{"501 not retried", http.MethodGet, []int{501}, 501, 1},
		{"401 not retried", http.MethodGet, []int{401}, 401, 1},
		{"retries exhausted", http.MethodGet, []int{500, 500, 500, 500}, 500, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := int(attempts.Add(1)) - 1
				if n >= len(tt.statuses) {
					n = len(tt.statuses) - 1
				}
				w.WriteHeader(tt.statuses[n])
			}))
			defer server.Close()

			body := ""
			if tt.method != http.MethodGet {
				body = `{}`
			}
			resp, err := send(context.Background(), New(retryingConfig(3)), tt.method, server.URL, body)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := retryingConfig(10)
	cfg.RetryWaitMin = 100 * time.Millisecond
	cfg.RetryWaitMax = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := send(ctx, New(cfg), http.MethodGet, server.URL, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
	assert.True(t, isRetryableError(context.DeadlineExceeded))
}

func TestAddJitter(t *testing.T) {
	assert.Zero(t, addJitter(0))

	const base = time.Second
	for i := 0; i < 100; i++ {
		d := addJitter(base)
		assert.GreaterOrEqual(t, d, base*3/4)
		assert.LessOrEqual(t, d, base*5/4)
	}
}
