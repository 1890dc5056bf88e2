package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/setlist/internal/images"
)

// DefaultAttemptTimeout bounds a single strategy attempt
const DefaultAttemptTimeout = 20 * time.Second

// Fetcher performs a single retrieval attempt
type Fetcher interface {
	Fetch(ctx context.Context, req images.Request) ([]byte, error)
}

// Attempt records one strategy tried during a resolution
type Attempt struct {
	Strategy string
	Endpoint string
	Duration time.Duration
	Err      error
}

// Resolution is the result of running the chain for one reference
type Resolution struct {
	Data     []byte
	Strategy string
	Endpoint string
	Attempts []Attempt
}

// Chain tries an ordered list of strategies until one returns bytes
type Chain struct {
	fetcher    Fetcher
	strategies []Strategy
	timeout    time.Duration
}

// NewChain creates a chain. A zero timeout uses DefaultAttemptTimeout;
// a strategy's own Timeout takes precedence.
func NewChain(fetcher Fetcher, strategies []Strategy, timeout time.Duration) *Chain {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Chain{
		fetcher:    fetcher,
		strategies: append([]Strategy(nil), strategies...),
		timeout:    timeout,
	}
}

// Strategies returns the configured order
func (c *Chain) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// Resolve runs the strategies for imageRef in order and stops at the first
// success. Intermediate failures are logged and swallowed; if every strategy
// fails the returned error matches ErrChainExhausted and wraps the last
// attempt's error. The Resolution is never nil, so callers can inspect the
// attempts on failure.
func (c *Chain) Resolve(ctx context.Context, imageRef string) (*Resolution, error) {
	res := &Resolution{}
	logger := Logger(ctx)

	ref, err := parseRef(imageRef)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrChainExhausted, err)
	}

	tried := make(map[string]bool, len(c.strategies))
	var lastErr error

	for _, strategy := range c.strategies {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%w: %s: %w", ErrChainExhausted, imageRef, err)
		}

		if !strategy.Applies(ref.Hostname()) {
			logger.Debug("Strategy does not apply to host", "strategy", strategy.Name, "host", ref.Hostname())
			continue
		}

		endpoint := strategy.Endpoint(imageRef)
		if tried[endpoint] {
			logger.Debug("Endpoint already attempted", "strategy", strategy.Name, "endpoint", endpoint)
			continue
		}
		tried[endpoint] = true

		data, attempt := c.attempt(ctx, strategy, endpoint)
		res.Attempts = append(res.Attempts, attempt)

		if attempt.Err == nil {
			res.Data = data
			res.Strategy = strategy.Name
			res.Endpoint = endpoint
			logger.Debug("Image retrieved", "strategy", strategy.Name, "bytes", len(data), "duration", attempt.Duration)
			return res, nil
		}

		lastErr = attempt.Err
		logger.Warn("Retrieval strategy failed", "strategy", strategy.Name, "ref", imageRef, "error", attempt.Err)
	}

	if lastErr == nil {
		lastErr = errors.New("no strategy applies to this host")
	}
	return res, fmt.Errorf("%w: %s after %d attempts: %w", ErrChainExhausted, imageRef, len(res.Attempts), lastErr)
}

func (c *Chain) attempt(ctx context.Context, strategy Strategy, endpoint string) ([]byte, Attempt) {
	timeout := strategy.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	data, err := c.fetcher.Fetch(attemptCtx, images.Request{URL: endpoint, Header: strategy.Header})
	if err == nil && len(data) == 0 {
		err = &images.FetchError{URL: endpoint, Err: errors.New("empty body")}
	}

	return data, Attempt{
		Strategy: strategy.Name,
		Endpoint: endpoint,
		Duration: time.Since(start),
		Err:      err,
	}
}
