package workflow

import "errors"

var (
	// ErrInitFailed means a radio was missing or hardware setup failed.
	ErrInitFailed = errors.New("initialization failed")

	// ErrHardwareFailure means the radio reported a fault during
	// capture or emission.
	ErrHardwareFailure = errors.New("hardware failure")

	// ErrBufferOverflow means an append was attempted past capacity.
	ErrBufferOverflow = errors.New("capture buffer overflow")

	// ErrTimeout means a state deadline elapsed.
	ErrTimeout = errors.New("state timeout")

	// ErrInvalidSignal means a signal failed validation at gate time.
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrTransmissionFailed means the radio's emit returned an error.
	ErrTransmissionFailed = errors.New("transmission failed")

	// ErrGateDenied means one of the four transmission gates refused.
	ErrGateDenied = errors.New("transmission gate denied")
)
