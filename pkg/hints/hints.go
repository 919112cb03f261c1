// Package hints labels "soft failures": outcomes that end a step early without
// being a real error, such as an unchanged build that produces no archive or a
// remote path that has nothing to back up.
//
// Producers wrap such outcomes with New or Wrap. Callers check them with
// IsHint and log them at a lower level instead of aborting the run.
package hints

import "errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a string.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Wrap takes an existing error and "promotes" it to a hint.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint checks if any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}

// Is checks if the error is a hint AND matches the target error.
func Is(err, target error) bool {
	return IsHint(err) && errors.Is(err, target)
}

// Filter returns nil for hints and err otherwise. It lets callers treat a
// skipped step as success in a single line.
func Filter(err error) error {
	if IsHint(err) {
		return nil
	}
	return err
}
