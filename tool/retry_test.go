package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestExecuteWithRetryRetriesRetryableErrors(t *testing.T) {
	attempts := 0
	data, attemptCount, err := executeWithRetry(context.Background(), RetryPolicy{
		MaxAttempts: 3,
	}, retryMeta{}, NoopObserver{}, func(ctx context.Context, attempt int) (*HTTPData, error) {
		attempts++
		if attempt < 3 {
			return nil, newToolError(ErrorCodeHTTP, "transient", true, nil)
		}
		return &HTTPData{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("executeWithRetry() error = %v, want nil", err)
	}
	if attemptCount != 3 {
		t.Fatalf("attemptCount = %d, want 3", attemptCount)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if data.StatusCode != 200 {
		t.Fatalf("data.StatusCode = %d, want 200", data.StatusCode)
	}
}

func TestExecuteWithRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	_, attemptCount, err := executeWithRetry(context.Background(), RetryPolicy{
		MaxAttempts: 5,
	}, retryMeta{}, NoopObserver{}, func(ctx context.Context, attempt int) (*HTTPData, error) {
		attempts++
		return nil, newToolError(ErrorCodeHTTP, "permanent", false, nil)
	})
	if err == nil {
		t.Fatal("executeWithRetry() error = nil, want non-nil")
	}
	if attemptCount != 1 || attempts != 1 {
		t.Fatalf("attempts = %d/%d, want 1/1", attemptCount, attempts)
	}
}

func TestExecuteWithRetrySurfacesLastError(t *testing.T) {
	_, attemptCount, err := executeWithRetry(context.Background(), RetryPolicy{
		MaxAttempts: 2,
	}, retryMeta{}, NoopObserver{}, func(ctx context.Context, attempt int) (*HTTPData, error) {
		return nil, newToolError(ErrorCodeHTTP, "still failing", true, nil)
	})
	if err == nil {
		t.Fatal("executeWithRetry() error = nil, want terminal error")
	}
	if attemptCount != 2 {
		t.Fatalf("attemptCount = %d, want 2", attemptCount)
	}
	if code := toolErrorCode(err); code != ErrorCodeHTTP {
		t.Fatalf("error code = %q, want %q", code, ErrorCodeHTTP)
	}
}

func TestExecuteWithRetryHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := executeWithRetry(ctx, RetryPolicy{
		MaxAttempts: 3,
		BackoffMS:   60_000,
	}, retryMeta{}, NoopObserver{}, func(ctx context.Context, attempt int) (*HTTPData, error) {
		return nil, newToolError(ErrorCodeHTTP, "transient", true, nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("executeWithRetry() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("executeWithRetry() blocked %v in backoff after cancel", elapsed)
	}
}

func TestExecuteWithRetryCanceledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, attemptCount, err := executeWithRetry(ctx, RetryPolicy{
		MaxAttempts: 3,
	}, retryMeta{}, NoopObserver{}, func(ctx context.Context, attempt int) (*HTTPData, error) {
		calls++
		return &HTTPData{StatusCode: 200}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("executeWithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Fatalf("fn called %d times after cancel, want 0", calls)
	}
	if attemptCount != 0 {
		t.Fatalf("attemptCount = %d, want 0 for an attempt never issued", attemptCount)
	}
}

func TestExecuteWithRetryEmitsRetryObservations(t *testing.T) {
	recorder := &recordingObserver{}
	_, _, _ = executeWithRetry(context.Background(), RetryPolicy{
		MaxAttempts: 3,
	}, retryMeta{toolName: "fetch", primitive: PrimitiveHTTP}, recorder, func(ctx context.Context, attempt int) (*HTTPData, error) {
		return nil, newToolError(ErrorCodeHTTP, "transient", true, nil)
	})

	if len(recorder.retries) != 2 {
		t.Fatalf("retry observations = %d, want 2", len(recorder.retries))
	}
	if recorder.retries[0].ToolName != "fetch" || recorder.retries[0].Attempt != 1 {
		t.Fatalf("first retry observation = %+v", recorder.retries[0])
	}
}

func TestBackoffDurationExponential(t *testing.T) {
	policy := normalizeRetryPolicy(RetryPolicy{BackoffMS: 100, Backoff: BackoffExponential})
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
	} {
		if got := backoffDuration(policy, attempt); got != want {
			t.Fatalf("backoffDuration(exp, %d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestBackoffDurationLinear(t *testing.T) {
	policy := normalizeRetryPolicy(RetryPolicy{BackoffMS: 100, Backoff: BackoffLinear})
	for attempt, want := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 300 * time.Millisecond,
	} {
		if got := backoffDuration(policy, attempt); got != want {
			t.Fatalf("backoffDuration(linear, %d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestStatusRetryableDefaults(t *testing.T) {
	policy := RetryPolicy{}
	for status, want := range map[int]bool{
		429: true, 500: true, 503: true,
		400: false, 404: false, 200: false,
	} {
		if got := statusRetryable(status, policy); got != want {
			t.Fatalf("statusRetryable(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestStatusRetryableConfigured(t *testing.T) {
	policy := RetryPolicy{RetryableStatus: []int{502}}
	if !statusRetryable(502, policy) {
		t.Fatal("statusRetryable(502) = false with explicit list, want true")
	}
	if statusRetryable(500, policy) {
		t.Fatal("statusRetryable(500) = true outside explicit list, want false")
	}
}

// recordingObserver captures observations for assertions.
type recordingObserver struct {
	mu      sync.Mutex
	invokes []InvokeObservation
	retries []RetryObservation
	health  []HealthObservation
}

func (r *recordingObserver) ObserveInvoke(o InvokeObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokes = append(r.invokes, o)
}

func (r *recordingObserver) ObserveRetry(o RetryObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, o)
}

func (r *recordingObserver) ObserveHealth(o HealthObservation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.health = append(r.health, o)
}

func (r *recordingObserver) Invokes() []InvokeObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]InvokeObservation(nil), r.invokes...)
}

func (r *recordingObserver) Retries() []RetryObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RetryObservation(nil), r.retries...)
}

func (r *recordingObserver) Health() []HealthObservation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HealthObservation(nil), r.health...)
}
