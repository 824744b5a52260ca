package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/schemadoc/pkg/agenterr"
)

// RetryPolicy tunes the retrying client.
type RetryPolicy struct {
	// MaxRetries is the number of attempts against the primary (default 2).
	MaxRetries int
	// MaxDelay caps the delay between attempts (default 30s). A Retry-After
	// header also gets capped here.
	MaxDelay time.Duration
	// InitialDelay seeds the exponential backoff (default 1s).
	InitialDelay time.Duration
}

// DefaultRetryPolicy returns the standard policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   2,
		MaxDelay:     30 * time.Second,
		InitialDelay: 1 * time.Second,
	}
}

// RetryingClient wraps a primary provider with retry, backoff, and a
// one-shot fallback provider.
//
// Retry applies to recoverable errors only. Parse errors are never retried.
// Credits errors skip retry entirely and go straight to the fallback. When
// the primary is exhausted and fallback is enabled, one attempt is made
// against the fallback model; its result is tagged UsedFallback.
type RetryingClient struct {
	primary       Provider
	fallback      Provider
	fallbackModel string
	policy        RetryPolicy
	logger        hclog.Logger

	// sleep is swapped in tests.
	sleep func(context.Context, time.Duration) error
}

// RetryingClientConfig holds configuration for the retrying client.
type RetryingClientConfig struct {
	Primary       Provider
	Fallback      Provider // nil disables fallback
	FallbackModel string
	Policy        RetryPolicy
	Logger        hclog.Logger
}

// NewRetryingClient creates the retrying client.
func NewRetryingClient(cfg RetryingClientConfig) (*RetryingClient, error) {
	if cfg.Primary == nil {
		return nil, fmt.Errorf("primary provider is required")
	}
	if cfg.Policy.MaxRetries == 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = FallbackModel()
	}

	return &RetryingClient{
		primary:       cfg.Primary,
		fallback:      cfg.Fallback,
		fallbackModel: cfg.FallbackModel,
		policy:        cfg.Policy,
		logger:        cfg.Logger.Named("llm-retry"),
		sleep:         sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// newBackoff builds the exponential schedule: 1s, 2s, 4s, ... capped at
// MaxDelay, no jitter so delays are deterministic.
func (c *RetryingClient) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialDelay
	b.Multiplier = 2
	b.MaxInterval = c.policy.MaxDelay
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// delayFor picks the next delay: a capped Retry-After header wins over the
// exponential schedule.
func (c *RetryingClient) delayFor(err error, sched *backoff.ExponentialBackOff) time.Duration {
	next := sched.NextBackOff()
	if ra := RetryAfterOf(err); ra > 0 {
		if ra > c.policy.MaxDelay {
			ra = c.policy.MaxDelay
		}
		return ra
	}
	return next
}

// Complete runs the full retry + fallback policy around the primary.
func (c *RetryingClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	result, primaryErr := c.attemptPrimary(ctx, func(ctx context.Context) (interface{}, error) {
		return c.primary.Complete(ctx, req)
	})
	if primaryErr == nil {
		return result.(*CompletionResult), nil
	}

	if !c.fallbackAvailable() {
		return nil, primaryErr
	}

	c.logger.Warn("primary provider failed, attempting fallback",
		"model", req.Model,
		"fallback_model", c.fallbackModel,
		"error", primaryErr,
	)

	fbReq := req
	fbReq.Model = c.fallbackModel
	fbResult, fbErr := c.fallback.Complete(ctx, fbReq)
	if fbErr != nil {
		return nil, fmt.Errorf("primary failed (%v); fallback failed: %w", primaryErr, Classify(fbErr))
	}
	fbResult.UsedFallback = true
	fbResult.ActualModel = c.fallbackModel
	return fbResult, nil
}

// Embed runs the same policy around the embedding surface.
func (c *RetryingClient) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	result, primaryErr := c.attemptPrimary(ctx, func(ctx context.Context) (interface{}, error) {
		return c.primary.Embed(ctx, texts, model)
	})
	if primaryErr == nil {
		return result.([][]float32), nil
	}

	if !c.fallbackAvailable() {
		return nil, primaryErr
	}

	vectors, fbErr := c.fallback.Embed(ctx, texts, "")
	if fbErr != nil {
		return nil, fmt.Errorf("primary failed (%v); fallback failed: %w", primaryErr, Classify(fbErr))
	}
	return vectors, nil
}

func (c *RetryingClient) fallbackAvailable() bool {
	return c.fallback != nil && FallbackEnabled()
}

// attemptPrimary runs up to MaxRetries attempts with backoff. Parse errors
// and non-recoverable errors return immediately; credits errors return
// immediately so the caller can fall back without delay.
func (c *RetryingClient) attemptPrimary(ctx context.Context, call func(context.Context) (interface{}, error)) (interface{}, error) {
	sched := c.newBackoff()

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		result, err := call(ctx)
		if err == nil {
			return result, nil
		}

		if IsParseError(err) {
			return nil, err
		}
		if IsCreditsError(err) {
			c.logger.Warn("credits exhausted on primary provider", "error", err)
			return nil, Classify(err)
		}

		classified := Classify(err)
		lastErr = classified
		if !isRetryable(classified) {
			return nil, classified
		}

		if attempt < c.policy.MaxRetries {
			delay := c.delayFor(err, sched)
			c.logger.Debug("retrying llm call",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	return agenterr.IsRecoverable(err)
}
