// README: Bounded-wait advisory client; every failure path degrades to "unavailable".
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cargoquote/internal/metrics"
)

const defaultTimeout = 8 * time.Second

// ClientConfig controls the deadline and breaker. Calls are never retried.
type ClientConfig struct {
	Timeout time.Duration
	Breaker BreakerConfig
}

// Client wraps an Advisor so callers get either a validated suggestion or
// "unavailable", never an error, within Timeout.
type Client struct {
	advisor Advisor
	timeout time.Duration
	breaker *breaker
	logger  *zap.Logger
}

// NewClient wraps advisor. A nil advisor yields a client that is always unavailable.
func NewClient(advisor Advisor, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	name := "none"
	if advisor != nil {
		name = advisor.Name()
	}
	logger = logger.With(zap.String("advisor", name))
	return &Client{
		advisor: advisor,
		timeout: cfg.Timeout,
		breaker: newBreaker(cfg.Breaker, logger),
		logger:  logger,
	}
}

// Enabled reports whether an oracle is configured at all.
func (c *Client) Enabled() bool {
	return c != nil && c.advisor != nil
}

// AdvisePricing returns a trusted pricing suggestion or false.
func (c *Client) AdvisePricing(ctx context.Context, doc PricingContext) (*PricingSuggestion, bool) {
	if !c.Enabled() {
		return nil, false
	}
	s, ok := call(ctx, c, "pricing", func(ctx context.Context) (*PricingSuggestion, error) {
		s, err := c.advisor.SuggestPricing(ctx, doc)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, ErrEmptyResponse
		}
		s.sanitize()
		if !s.Trusted() {
			return nil, fmt.Errorf("%w: recommended_price missing or not positive", ErrMalformedSuggestion)
		}
		return s, nil
	})
	return s, ok
}

// AdviseRoute returns a sanitised route suggestion or false. Field-level bounds
// against the local estimate are the caller's concern.
func (c *Client) AdviseRoute(ctx context.Context, doc RouteContext) (*RouteSuggestion, bool) {
	if !c.Enabled() {
		return nil, false
	}
	s, ok := call(ctx, c, "route", func(ctx context.Context) (*RouteSuggestion, error) {
		s, err := c.advisor.SuggestRoute(ctx, doc)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, ErrEmptyResponse
		}
		s.sanitize()
		if !s.Trusted() {
			return nil, fmt.Errorf("%w: no usable route fields", ErrMalformedSuggestion)
		}
		return s, nil
	})
	return s, ok
}

type result[T any] struct {
	v   *T
	err error
}

// call runs fn under the client deadline. fn runs on its own goroutine so a
// provider that ignores ctx still cannot hold the caller past the deadline.
func call[T any](ctx context.Context, c *Client, kind string, fn func(context.Context) (*T, error)) (*T, bool) {
	if err := c.breaker.allow(); err != nil {
		metrics.AdvisoryRequests.WithLabelValues(kind, "circuit_open").Inc()
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("advisor panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{v: v, err: err}
	}()

	var res result[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res = result[T]{err: ctx.Err()}
	}
	metrics.AdvisoryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	c.breaker.record(res.err)

	if res.err != nil {
		outcome := outcomeOf(res.err)
		metrics.AdvisoryRequests.WithLabelValues(kind, outcome).Inc()
		c.logger.Warn("advisory unavailable, using local model",
			zap.String("kind", kind),
			zap.String("outcome", outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(res.err))
		return nil, false
	}
	metrics.AdvisoryRequests.WithLabelValues(kind, "ok").Inc()
	return res.v, true
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMalformedSuggestion), errors.Is(err, ErrEmptyResponse):
		return "malformed"
	default:
		return "error"
	}
}
