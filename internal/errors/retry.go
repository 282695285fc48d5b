package errors

import (
	"math/rand"
	"time"
)

// RetryController implements exponential backoff with jitter. The mutation
// protocol uses it to retry the successor insert after a close has already
// been persisted, before surfacing ErrOrphanedClose.
type RetryController struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	maxRetries   int
}

// NewRetryController creates a retry controller with default settings:
// initial delay 10ms, max delay 1s, max retries 5.
func NewRetryController() *RetryController {
	return NewRetryControllerWith(10*time.Millisecond, 1*time.Second, 5)
}

// NewRetryControllerWith creates a retry controller with explicit settings.
func NewRetryControllerWith(initial, max time.Duration, retries int) *RetryController {
	return &RetryController{
		initialDelay: initial,
		maxDelay:     max,
		maxRetries:   retries,
	}
}

// Retry executes fn, retrying with backoff while the classifier marks the
// error retryable.
func (rc *RetryController) Retry(fn func() error, classifier *Classifier) error {
	var lastErr error

	for attempt := 0; attempt <= rc.maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		category := classifier.Classify(err)

		if !classifier.ShouldRetry(category) {
			return err
		}

		if attempt >= rc.maxRetries {
			return err
		}

		time.Sleep(rc.calculateDelay(attempt))
	}

	return lastErr
}

func (rc *RetryController) calculateDelay(attempt int) time.Duration {
	delay := rc.initialDelay * time.Duration(1<<uint(attempt))

	if delay > rc.maxDelay {
		delay = rc.maxDelay
	}

	// ±25% jitter
	jitter := time.Duration(float64(delay) * 0.25 * (rand.Float64()*2 - 1))
	delay += jitter

	if delay < 0 {
		delay = rc.initialDelay
	}

	return delay
}
