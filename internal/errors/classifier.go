package errors

import (
	"errors"
	"syscall"
)

// ErrorCategory splits failures by who can act on them: validation errors
// are the caller's fault, invariant violations mean the chain is malformed,
// resource errors are recoverable.
type ErrorCategory int

const (
	ErrorTransient  ErrorCategory = iota // Temporary errors - retry with backoff
	ErrorValidation                      // Caller input errors - no retry
	ErrorInvariant                       // Chain invariant violations - abort, never retry
	ErrorResource                        // Resource limits - caller may recover
	ErrorPermanent                       // Everything else - no retry
)

// Classifier categorizes errors for retry decisions.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify determines the category of an error.
func (c *Classifier) Classify(err error) ErrorCategory {
	if err == nil {
		return ErrorPermanent
	}

	var sysErr syscall.Errno
	if errors.As(err, &sysErr) {
		switch sysErr {
		case syscall.EAGAIN, syscall.ENOMEM, syscall.ETIMEDOUT:
			return ErrorTransient
		}
	}

	switch {
	case errors.Is(err, ErrInvalidJSON),
		errors.Is(err, ErrNotJSONObject),
		errors.Is(err, ErrUnknownSelector),
		errors.Is(err, ErrBadRange),
		errors.Is(err, ErrHistoricMutation),
		errors.Is(err, ErrMixedUpdate),
		errors.Is(err, ErrInvalidPath):
		return ErrorValidation

	case errors.Is(err, ErrNotTemporal),
		errors.Is(err, ErrVersionClosed),
		errors.Is(err, ErrOpenPredecessor):
		return ErrorInvariant

	case errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrOrphanedClose),
		errors.Is(err, ErrScanCancelled),
		errors.Is(err, ErrQueueFull),
		errors.Is(err, ErrFrameTooLarge):
		return ErrorResource

	case errors.Is(err, ErrFileOpen),
		errors.Is(err, ErrFileWrite),
		errors.Is(err, ErrFileRead):
		// File errors could be transient (EAGAIN) or permanent (ENOENT);
		// treat as potentially transient for retry logic.
		return ErrorTransient
	}

	return ErrorPermanent
}

// ShouldRetry returns true if the category indicates retry is appropriate.
func (c *Classifier) ShouldRetry(category ErrorCategory) bool {
	return category == ErrorTransient
}

// IsInvariant returns true for chain invariant violations, which must abort
// the operation.
func (c *Classifier) IsInvariant(category ErrorCategory) bool {
	return category == ErrorInvariant
}
