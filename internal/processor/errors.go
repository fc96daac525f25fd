package processor

import "errors"

// FatalMessageError marks a dequeued message that can never succeed (decode
// or validation failure). The consumer routes it to the dead-letter sink
// instead of retrying.
type FatalMessageError struct {
	Reason string
	Err    error
}

func (e *FatalMessageError) Error() string {
	return "fatal message: " + e.Reason
}

func (e *FatalMessageError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is a non-retryable message failure.
func IsFatal(err error) bool {
	var fatal *FatalMessageError
	return errors.As(err, &fatal)
}
