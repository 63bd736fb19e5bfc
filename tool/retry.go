package tool

import (
	"context"
	"errors"
	"net"
	"time"
)

type attemptFunc func(ctx context.Context, attempt int) (*HTTPData, error)

type retryMeta struct {
	toolName  string
	primitive PrimitiveType
}

// executeWithRetry runs fn up to policy.MaxAttempts times, sleeping the
// configured backoff between retryable failures. It returns the number of
// attempts actually issued alongside the final outcome.
func executeWithRetry(ctx context.Context, policy RetryPolicy, meta retryMeta, observer Observer, fn attemptFunc) (*HTTPData, int, error) {
	normalized := normalizeRetryPolicy(policy)
	var lastErr error

	for attempt := 1; attempt <= normalized.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			// This attempt was never issued.
			return nil, attempt - 1, err
		}

		data, err := fn(ctx, attempt)
		if err == nil {
			return data, attempt, nil
		}
		lastErr = err
		if attempt == normalized.MaxAttempts || !isRetryableError(err) {
			return nil, attempt, err
		}
		observer.ObserveRetry(RetryObservation{
			ToolName:  meta.toolName,
			Primitive: meta.primitive,
			Attempt:   attempt,
			ErrorCode: toolErrorCode(err),
		})

		wait := backoffDuration(normalized, attempt)
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, normalized.MaxAttempts, lastErr
}

func normalizeRetryPolicy(policy RetryPolicy) RetryPolicy {
	out := policy
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 1
	}
	if out.BackoffMS < 0 {
		out.BackoffMS = 0
	}
	if out.Backoff != BackoffLinear {
		out.Backoff = BackoffExponential
	}
	return out
}

// backoffDuration computes the wait after the given 1-based failed attempt.
// Linear grows as backoff*attempt, exponential doubles per attempt.
func backoffDuration(policy RetryPolicy, attempt int) time.Duration {
	if policy.BackoffMS <= 0 || attempt <= 0 {
		return 0
	}
	base := time.Duration(policy.BackoffMS) * time.Millisecond
	if policy.Backoff == BackoffLinear {
		return base * time.Duration(attempt)
	}
	return base << (attempt - 1)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if toolErr, ok := toolErrorFrom(err); ok {
		return toolErr.Retryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func statusRetryable(status int, policy RetryPolicy) bool {
	if len(policy.RetryableStatus) > 0 {
		for _, candidate := range policy.RetryableStatus {
			if candidate == status {
				return true
			}
		}
		return false
	}
	return status == 429 || (status >= 500 && status <= 599)
}
