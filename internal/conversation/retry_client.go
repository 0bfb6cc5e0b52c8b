package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/havana-support/pkg/logging"
)

// LLMObserver records the latency and result of each model call.
type LLMObserver interface {
	ObserveLLMCall(task, status string, duration time.Duration)
}

// RetryingLLMClient bounds every attempt with a timeout and retries failed
// attempts with exponential backoff. Cancellation of the caller's context is
// never retried.
type RetryingLLMClient struct {
	inner      LLMClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	observer   LLMObserver
	logger     *logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// RetryOption customizes a RetryingLLMClient.
type RetryOption func(*RetryingLLMClient)

func WithAttemptTimeout(d time.Duration) RetryOption {
	return func(c *RetryingLLMClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithMaxRetries(n int) RetryOption {
	return func(c *RetryingLLMClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

func WithRetryBackoff(d time.Duration) RetryOption {
	return func(c *RetryingLLMClient) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithLLMObserver reports per-attempt latency.
func WithLLMObserver(o LLMObserver) RetryOption {
	return func(c *RetryingLLMClient) { c.observer = o }
}

func NewRetryingLLMClient(inner LLMClient, logger *logging.Logger, opts ...RetryOption) *RetryingLLMClient {
	if inner == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &RetryingLLMClient{
		inner:      inner,
		timeout:    30 * time.Second,
		maxRetries: 2,
		backoff:    250 * time.Millisecond,
		logger:     logger,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RetryingLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			if err := c.sleep(ctx, wait); err != nil {
				return LLMResponse{}, err
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return LLMResponse{}, ctx.Err()
		}
		c.logger.Warn("llm call failed",
			"task", string(req.Task),
			"attempt", attempt+1,
			"max_attempts", c.maxRetries+1,
			"error", err,
		)
	}
	return LLMResponse{}, lastErr
}

func (c *RetryingLLMClient) attempt(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.inner.Complete(callCtx, req)
	if c.observer != nil {
		status := "ok"
		switch {
		case err == nil:
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded):
			status = "timeout"
		default:
			status = "error"
		}
		c.observer.ObserveLLMCall(string(req.Task), status, time.Since(start))
	}
	return resp, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
