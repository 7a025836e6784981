package pipesched

import (
	goerrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// UserError is returned when the pipeline IR itself is malformed in a way
// the caller must fix: a missing or non-literal output estimate. It aborts
// generation immediately; the scheduler never runs.
type UserError struct {
	msg string
}

func (e *UserError) Error() string { return e.msg }

func newUserError(format string, args ...interface{}) error {
	return errors.WithStack(&UserError{msg: fmt.Sprintf(format, args...)})
}

// IsUserError reports whether err (or something it wraps) is a UserError.
func IsUserError(err error) bool {
	var target *UserError
	return goerrors.As(err, &target)
}

// ContractViolationError marks a broken internal contract: an expression
// node that must never survive lowering reached the cost visitor, or a merge
// named a producer or consumer group that does not exist. These are not
// recoverable and are raised as panics. Fusion-cache invalidation sweeps
// matching keys and never raises one.
type ContractViolationError struct {
	msg string
}

func (e *ContractViolationError) Error() string { return e.msg }

func contractViolation(format string, args ...interface{}) {
	panic(&ContractViolationError{msg: fmt.Sprintf(format, args...)})
}

// UnknownExtentError signals that bounds inference could not resolve a
// region to literal endpoints. It is not panicked: it propagates as a
// normal (if negative) signal value through cost arithmetic rather than
// aborting the search.
type UnknownExtentError struct {
	Stage  FStage
	Detail string
}

func (e *UnknownExtentError) Error() string {
	return fmt.Sprintf("unknown extent for stage %s: %s", e.Stage.String(), e.Detail)
}

// IsUnknownExtentError reports whether err (or something it wraps) is an
// UnknownExtentError.
func IsUnknownExtentError(err error) bool {
	var target *UnknownExtentError
	return goerrors.As(err, &target)
}
