package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/agenterrors"
)

func testMessage() a2a.Message {
	return a2a.Message{
		ID:       "msg-1",
		Type:     a2a.TypeRequest,
		Priority: a2a.PriorityNormal,
		Payload:  a2a.Payload{ContentType: a2a.ContentTypeSkillRequest, Content: []byte(`{}`)},
	}
}

func fastClientConfig() ClientConfig {
	cfg := DefaultClientConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.Breaker.Cooldown = 30 * time.Millisecond
	return cfg
}

func TestClient_Send(t *testing.T) {
	t.Run("Should succeed on the third attempt after two 503s", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			if n < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"msg-1-reply","type":"response","priority":"normal","payload":{"contentType":"skill/response","content":{}}}`))
		}))
		defer srv.Close()

		c := NewClient(fastClientConfig())
		resp, err := c.Send(context.Background(), srv.URL, testMessage())

		require.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, "msg-1-reply", resp.ID)
	})

	t.Run("Should not retry a non-retryable 400 response", func(t *testing.T) {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		c := NewClient(fastClientConfig())
		_, err := c.Send(context.Background(), srv.URL, testMessage())

		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindProtocolError, kind)
	})

	t.Run("Should wait at least the Retry-After duration before retrying a 429", func(t *testing.T) {
		var calls int32
		var secondAttempt time.Time
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			secondAttempt = time.Now()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"ok","type":"response","priority":"normal","payload":{"contentType":"skill/response","content":{}}}`))
		}))
		defer srv.Close()

		cfg := fastClientConfig() // RetryDelay of 1ms would otherwise retry almost instantly
		c := NewClient(cfg)

		start := time.Now()
		_, err := c.Send(context.Background(), srv.URL, testMessage())

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.GreaterOrEqual(t, secondAttempt.Sub(start), time.Second)
	})

	t.Run("Should open the circuit after five consecutive failures and reject the sixth immediately", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		cfg := fastClientConfig()
		cfg.MaxRetries = 0 // isolate breaker behavior from per-send retries
		c := NewClient(cfg)

		for i := 0; i < 5; i++ {
			_, err := c.Send(context.Background(), srv.URL, testMessage())
			require.Error(t, err)
		}

		start := time.Now()
		_, err := c.Send(context.Background(), srv.URL, testMessage())
		elapsed := time.Since(start)

		require.Error(t, err)
		kind, ok := agenterrors.KindOf(err)
		require.True(t, ok)
		assert.Equal(t, agenterrors.KindCircuitOpen, kind)
		assert.Less(t, elapsed, 5*time.Millisecond)
	})

	t.Run("Should close the breaker after two successful probes following cooldown", func(t *testing.T) {
		var healthy atomic.Bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthy.Load() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"id":"ok","type":"response","priority":"normal","payload":{"contentType":"skill/response","content":{}}}`))
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		cfg := fastClientConfig()
		cfg.MaxRetries = 0
		c := NewClient(cfg)

		for i := 0; i < 5; i++ {
			_, _ = c.Send(context.Background(), srv.URL, testMessage())
		}
		br := c.breakers.get(srv.URL)
		require.Equal(t, stateOpen, br.state)

		time.Sleep(cfg.Breaker.Cooldown + 10*time.Millisecond)
		healthy.Store(true)

		_, err := c.Send(context.Background(), srv.URL, testMessage())
		require.NoError(t, err)
		assert.Equal(t, stateHalfOpen, br.state)

		_, err = c.Send(context.Background(), srv.URL, testMessage())
		require.NoError(t, err)
		assert.Equal(t, stateClosed, br.state)
	})
}

func TestClient_Broadcast(t *testing.T) {
	t.Run("Should collect per-destination results for every endpoint", func(t *testing.T) {
		ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"r","type":"response","priority":"normal","payload":{"contentType":"skill/response","content":{}}}`))
		}))
		defer ok.Close()
		down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer down.Close()

		cfg := fastClientConfig()
		cfg.MaxRetries = 0
		c := NewClient(cfg)

		results := c.Broadcast(context.Background(), []string{ok.URL, down.URL}, testMessage())

		require.Len(t, results, 2)
		assert.NoError(t, results[ok.URL].Err)
		assert.Error(t, results[down.URL].Err)
	})
}
