package wavelane

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotAvailable indicates the endpoint reported itself invalidated
	// (unplugged, disabled) during session construction. Callers may pick a
	// different endpoint or retry later.
	ErrDeviceNotAvailable = errors.New("audio device not available")

	// ErrFormatNotSupported indicates the device rejected the requested format
	// outright, without offering a substitute. Callers may retry with a
	// different format.
	ErrFormatNotSupported = errors.New("audio format not supported by device")

	// ErrDeviceInvalidated is wrapped by transport implementations when the
	// underlying device reports the invalidated condition. The session maps it
	// to ErrDeviceNotAvailable during construction.
	ErrDeviceInvalidated = errors.New("audio device invalidated")

	// ErrLeaseOutstanding is returned when acquiring a buffer lease while a
	// previous lease has not been finished yet.
	ErrLeaseOutstanding = errors.New("buffer lease still outstanding")

	// ErrLeaseFinished is returned when finishing a lease more than once.
	ErrLeaseFinished = errors.New("buffer lease already finished")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session closed")

	// ErrRequestTooSmall is returned when a lease request covers less than one
	// full audio frame.
	ErrRequestTooSmall = errors.New("lease request smaller than one frame")

	// ErrSampleFormatUnsupported is returned when the negotiated bit depth has
	// no recognized sample representation (only 16-bit integer PCM is known).
	ErrSampleFormatUnsupported = errors.New("sample format not supported")

	// ErrPlatformUnsupported is returned when no native audio transport exists
	// for the current platform.
	ErrPlatformUnsupported = errors.New("no audio transport on this platform")
)

// FatalError wraps a device failure that has no local recovery: a driver
// fault, protocol misuse, or any unexpected result code outside the two
// recoverable construction errors. It is not retried internally.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal device failure during %s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
