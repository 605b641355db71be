package probes

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEnumeration is returned when the OS interface table could not be read.
	ErrEnumeration = errors.New("unable to enumerate network interfaces")
	// ErrInterfaceNotFound is returned when no interface with the requested name exists.
	ErrInterfaceNotFound = errors.New("network interface not found")
	// ErrProbeTimeout is returned when a throughput probe exceeds its overall deadline.
	ErrProbeTimeout = errors.New("throughput probe timed out")
	// ErrProbe is returned when the measurement transport could not be established.
	ErrProbe = errors.New("throughput probe failed")
)

// ErrorKind names the failure class of err for consumers that render it.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEnumeration):
		return "EnumerationError"
	case errors.Is(err, ErrInterfaceNotFound):
		return "InterfaceNotFoundError"
	case errors.Is(err, ErrProbeTimeout):
		return "ProbeTimeoutError"
	case errors.Is(err, ErrProbe):
		return "ProbeError"
	default:
		return "Error"
	}
}

// probeFailure classifies err from a transfer run under ctx. The overall deadline
// wins over whatever error the transport surfaced while being torn down.
func probeFailure(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProbeTimeout, err)
	}
	if errors.Is(err, ErrProbe) || errors.Is(err, ErrProbeTimeout) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrProbe, err)
}
