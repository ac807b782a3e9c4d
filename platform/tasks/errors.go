package tasks

import "errors"

// nonRetriableError marks a task failure that can never succeed on
// retry, such as a data-integrity violation.
type nonRetriableError struct {
	err error
}

func (e *nonRetriableError) Error() string {
	return "non-retriable: " + e.err.Error()
}

func (e *nonRetriableError) Unwrap() error {
	return e.err
}

// NonRetriable wraps an error so the runner fails the task immediately
// instead of retrying.
func NonRetriable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetriableError{err: err}
}

// IsNonRetriable reports whether the error carries the non-retriable
// marker anywhere in its chain.
func IsNonRetriable(err error) bool {
	var target *nonRetriableError
	return errors.As(err, &target)
}
