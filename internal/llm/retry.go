package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/moolen/faultline/internal/logging"
)

// ErrorPrefix starts every failure sentinel returned by Retrier.
const ErrorPrefix = "[LLM ERROR]"

// RetryPolicy bounds the attempts made for one completion.
type RetryPolicy struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultRetryPolicy returns 2 retries, 2s backoff and a 120s attempt timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Retries: 2,
		Backoff: 2 * time.Second,
		Timeout: 120 * time.Second,
	}
}

// Result is the outcome of Retrier.Complete. Text is always set: on failure it holds the
// error sentinel and Err the last error.
type Result struct {
	Text     string
	Attempts int
	Err      error
}

// Degraded reports whether the text is a failure sentinel.
func (r Result) Degraded() bool {
	return r.Err != nil
}

// Retrier applies a RetryPolicy to a Provider.
type Retrier struct {
	provider Provider
	policy   RetryPolicy
	logger   *logging.Logger

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier wraps provider.
func NewRetrier(provider Provider, policy RetryPolicy) *Retrier {
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &Retrier{
		provider: provider,
		policy:   policy,
		logger:   logging.GetLogger("llm"),
		sleep:    sleepContext,
	}
}

// Provider returns the wrapped provider.
func (r *Retrier) Provider() Provider {
	return r.provider
}

// Complete calls the provider up to Retries+1 times. Cancellation of ctx stops retrying.
func (r *Retrier) Complete(ctx context.Context, prompt string) Result {
	attempts := r.policy.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := r.attempt(ctx, prompt)
		if err == nil {
			return Result{Text: text, Attempts: attempt}
		}
		lastErr = err
		r.logger.WithContext(ctx).WarnWithFields("language model call failed",
			logging.Field("provider", r.provider.Name()),
			logging.Field("attempt", attempt),
			logging.Field("max_attempts", attempts),
			logging.Field("error", err.Error()),
		)

		if ctx.Err() != nil {
			return failure(attempt, ctx.Err())
		}
		if attempt < attempts {
			if err := r.sleep(ctx, r.policy.Backoff); err != nil {
				return failure(attempt, err)
			}
		}
	}
	return failure(attempts, lastErr)
}

func (r *Retrier) attempt(ctx context.Context, prompt string) (string, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	return r.provider.Complete(ctx, prompt)
}

func failure(attempts int, err error) Result {
	return Result{
		Text:     Sentinel(attempts, err),
		Attempts: attempts,
		Err:      err,
	}
}

// Sentinel formats the text stored when the model could not be reached.
func Sentinel(attempts int, err error) string {
	return fmt.Sprintf("%s Unable to get response from language model after %d attempts. Last error: %v",
		ErrorPrefix, attempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
