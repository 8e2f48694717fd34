package resilience

import (
	"github.com/sells-group/place-enrich/internal/model"
)

// FailureClass decides what a worker does with a failed task.
type FailureClass string

const (
	// FailureNone means the task reached a terminal outcome and is acked.
	FailureNone FailureClass = "none"
	// FailureTransient means the task should be redelivered.
	FailureTransient FailureClass = "transient"
	// FailurePermanent means redelivery cannot help; the task is acked or
	// dead-lettered.
	FailurePermanent FailureClass = "permanent"
)

// Classify maps a task error onto a FailureClass. Validation errors are
// permanent; persistence errors and transient provider errors are retried.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureNone
	case model.IsValidation(err):
		return FailurePermanent
	case model.IsPersistence(err), IsTransient(err):
		return FailureTransient
	}
	return FailurePermanent
}

// ShouldDeadLetter reports whether a message that failed on attempt number
// attempts (1-based) should stop being redelivered.
func ShouldDeadLetter(class FailureClass, attempts, maxAttempts int) bool {
	if class == FailurePermanent {
		return true
	}
	return class == FailureTransient && maxAttempts > 0 && attempts >= maxAttempts
}
