//go:build windows

package async

import "errors"

// ErrUnsupportedPlatform is returned by NewChannel on platforms without a
// signalFD implementation.
var ErrUnsupportedPlatform = errors.New("async: channel readiness signalling is not implemented on this platform")

func newSignalFD() (signalFD, error) {
	return nil, ErrUnsupportedPlatform
}
