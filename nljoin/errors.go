package nljoin

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnsupportedJoinKind is returned when a join kind other than
	// InnerJoin or LeftJoin reaches the nested-loop path.
	ErrUnsupportedJoinKind = errors.New("unsupported join kind")

	// ErrDeviceExecution marks any fault raised by the device during a
	// launch or memory operation. It is never retried.
	ErrDeviceExecution = errors.New("device execution error")
)

// UnsupportedJoinKind builds the error for kind.
func UnsupportedJoinKind(kind JoinKind) error {
	return errors.Wrapf(ErrUnsupportedJoinKind, "nested loop join cannot execute %s join", kind)
}

// DeviceFault marks err as a device execution error, adding op as context.
// A nil err stays nil.
func DeviceFault(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeviceExecution) {
		return errors.Wrap(err, op)
	}
	return errors.Mark(errors.Wrap(err, op), ErrDeviceExecution)
}

// IsDeviceFault reports whether err came from the device.
func IsDeviceFault(err error) bool {
	return errors.Is(err, ErrDeviceExecution)
}
