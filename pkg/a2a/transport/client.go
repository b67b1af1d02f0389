// Package transport implements spec §4.6's Agent-to-Agent Transport: an
// HTTP client with timeout/retry/circuit-breaker, and an HTTP server that
// receives inbound messages.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/agentcore/platform/internal/logger"
	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/agenterrors"
)

// ClientConfig configures timeout and retry behavior (spec §4.6, §6.4).
type ClientConfig struct {
	DefaultTimeout time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Breaker        BreakerConfig
}

// DefaultClientConfig matches spec §6.4's defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DefaultTimeout: 30 * time.Second,
		MaxRetries:     3,
		RetryDelay:     time.Second,
		Breaker:        DefaultBreakerConfig(),
	}
}

// Client sends Messages to remote agent endpoints over HTTP, applying a
// per-destination circuit breaker and bounded exponential-backoff retry.
type Client struct {
	http     *resty.Client
	cfg      ClientConfig
	breakers *breakerRegistry
}

// NewClient builds a Client from cfg, with a fresh resty client on resty's
// default transport and an empty per-destination breaker registry.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		http:     resty.New(),
		cfg:      cfg,
		breakers: newBreakerRegistry(cfg.Breaker),
	}
}

// effectiveTimeout is min(message.ttl_seconds, default_timeout) per spec §4.6.
func (c *Client) effectiveTimeout(msg a2a.Message) time.Duration {
	if msg.TimeToLiveSeconds == nil {
		return c.cfg.DefaultTimeout
	}
	ttl := time.Duration(*msg.TimeToLiveSeconds) * time.Second
	if ttl < c.cfg.DefaultTimeout {
		return ttl
	}
	return c.cfg.DefaultTimeout
}

// Send delivers msg to endpoint and returns the decoded response message.
// It honors the circuit breaker, retries transient failures with jittered
// exponential backoff, and bounds total wall time by the caller's context
// deadline intersected with the message's effective timeout (spec §5
// property 5).
func (c *Client) Send(ctx context.Context, endpoint string, msg a2a.Message) (*a2a.Message, error) {
	log := logger.FromContext(ctx).With("destination", endpoint, "message_id", msg.ID)

	br := c.breakers.get(endpoint)
	if err := br.Allow(); err != nil {
		return nil, err
	}

	timeout := c.effectiveTimeout(msg)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.cfg.RetryDelay, attempt)
			if ra, ok := retryAfterDuration(lastErr); ok {
				delay = ra
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, agenterrors.New(agenterrors.KindTimeout, "message delivery timed out", map[string]any{"destination": endpoint})
			case <-timer.C:
			}
		}

		resp, err := c.attempt(ctx, endpoint, msg)
		if err == nil {
			br.RecordSuccess()
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			br.RecordFailure()
			return nil, err
		}
		log.Warn("a2a delivery attempt failed, retrying", "attempt", attempt, "error", err)
	}

	br.RecordFailure()
	return nil, agenterrors.Wrap(agenterrors.KindUnreachable, lastErr, map[string]any{"destination": endpoint, "attempts": c.cfg.MaxRetries + 1})
}

// attempt performs a single HTTP POST of msg to endpoint.
func (c *Client) attempt(ctx context.Context, endpoint string, msg a2a.Message) (*a2a.Message, error) {
	var out a2a.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		SetResult(&out).
		Post(endpoint + "/a2a/messages")
	if err != nil {
		return nil, agenterrors.Wrap(agenterrors.KindUnreachable, err, map[string]any{"destination": endpoint})
	}

	if resp.StatusCode() == http.StatusOK || resp.StatusCode() == http.StatusAccepted {
		return &out, nil
	}

	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() == http.StatusRequestTimeout {
		return nil, retryableStatusError(resp)
	}
	if resp.StatusCode() >= 500 {
		return nil, retryableStatusError(resp)
	}
	return nil, agenterrors.New(agenterrors.KindProtocolError, fmt.Sprintf("unexpected status %d", resp.StatusCode()), map[string]any{
		"status": resp.StatusCode(), "body": string(resp.Body()),
	})
}

func retryableStatusError(resp *resty.Response) error {
	return agenterrors.New(agenterrors.KindUnreachable, fmt.Sprintf("destination returned status %d", resp.StatusCode()), map[string]any{
		"status":      resp.StatusCode(),
		"retry_after": resp.Header().Get("Retry-After"),
	})
}

// retryable mirrors spec §4.6: retry on transport failure / 5xx / 408 / 429,
// never on other 4xx.
func retryable(err error) bool {
	kind, ok := agenterrors.KindOf(err)
	if !ok {
		return true
	}
	return kind == agenterrors.KindUnreachable || kind == agenterrors.KindTimeout
}

// retryAfterDuration extracts a Retry-After value recorded on a 408/429
// response (spec §4.6: consult Retry-After for those statuses rather than
// the computed backoff) as either delta-seconds or an HTTP-date.
func retryAfterDuration(err error) (time.Duration, bool) {
	aerr, ok := err.(*agenterrors.Error)
	if !ok || aerr == nil || aerr.Details == nil {
		return 0, false
	}
	raw, _ := aerr.Details["retry_after"].(string)
	if raw == "" {
		return 0, false
	}
	if secs, convErr := strconv.Atoi(raw); convErr == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if when, parseErr := http.ParseTime(raw); parseErr == nil {
		if d := time.Until(when); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// backoffDelay is retryDelay * 2^(attempt-1) jittered by ±20% (spec §4.6).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	factor := math.Pow(2, float64(attempt-1))
	nominal := time.Duration(float64(base) * factor)
	jitter := 1 + (rand.Float64()*0.4 - 0.2)
	return time.Duration(float64(nominal) * jitter)
}

// Broadcast sends msg to every endpoint concurrently and collects the
// per-destination outcomes.
func (c *Client) Broadcast(ctx context.Context, endpoints []string, msg a2a.Message) map[string]BroadcastResult {
	type indexed struct {
		endpoint string
		resp     *a2a.Message
		err      error
	}
	results := make(chan indexed, len(endpoints))
	for _, ep := range endpoints {
		ep := ep
		go func() {
			resp, err := c.Send(ctx, ep, msg)
			results <- indexed{endpoint: ep, resp: resp, err: err}
		}()
	}
	out := make(map[string]BroadcastResult, len(endpoints))
	for range endpoints {
		r := <-results
		out[r.endpoint] = BroadcastResult{Response: r.resp, Err: r.err}
	}
	return out
}

// BroadcastResult pairs one destination's outcome in a Broadcast call.
type BroadcastResult struct {
	Response *a2a.Message
	Err      error
}

// marshalMessage returns msg's raw wire bytes without issuing a request. It
// is unexported and has no caller in this module.
func marshalMessage(msg a2a.Message) ([]byte, error) {
	return json.Marshal(msg)
}
