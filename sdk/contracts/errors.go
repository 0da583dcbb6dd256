package contracts

import (
	"errors"
	"fmt"
)

// Failure taxonomy of the sequencer client. Every kernel-reported error is
// mapped onto one of these sentinels so callers can branch with errors.Is;
// the raw errno is preserved in KernelError for diagnostics.
var (
	// ErrOpen wraps the underlying device/permission/busy condition that
	// prevented opening the sequencer.
	ErrOpen = errors.New("sequencer open failed")
	// ErrClosed is returned from any operation on an invalidated handle,
	// including reads that were blocked when the handle was closed.
	ErrClosed = errors.New("sequencer handle closed")
	// ErrWouldBlock is the expected, recoverable outcome of a non-blocking
	// read with no event pending or write with no buffer space.
	ErrWouldBlock = errors.New("operation would block")
	// ErrTimedOut reports expiry of a bounded wait. The handle stays usable.
	ErrTimedOut = errors.New("wait timed out")
	// ErrNotFound reports an address, subscription or queue lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyConnected reports a duplicate non-exclusive subscription.
	ErrAlreadyConnected = errors.New("ports already connected")
	// ErrPortBusy reports an exclusive subscription occupying an endpoint.
	ErrPortBusy = errors.New("port busy")
	// ErrInvalidCapability reports a contradictory port capability/type
	// combination, such as subscribable-write without the writable bit.
	ErrInvalidCapability = errors.New("invalid capability combination")
	// ErrCapabilityMismatch reports a subscription whose endpoints lack the
	// subscribable capabilities the edge requires.
	ErrCapabilityMismatch = errors.New("insufficient port capabilities")
	// ErrMalformedEvent reports a short, truncated or unrecognized envelope.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrPayloadTooLarge reports inline payload data that exceeds the
	// envelope payload area on an event type without chaining support.
	ErrPayloadTooLarge = errors.New("event payload too large")
	// ErrResourceExhausted reports a full kernel table (queues, ports).
	ErrResourceExhausted = errors.New("kernel resource exhausted")
	// ErrNotOwned reports an attempt to mutate a resource owned by another
	// client.
	ErrNotOwned = errors.New("resource not owned by this client")
	// ErrInvalidArgument reports an argument the kernel would reject, such
	// as a non-positive tempo.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrAddressSyntax reports malformed address text.
	ErrAddressSyntax = errors.New("invalid address syntax")
	// ErrUnsupportedOS is returned when no sequencer backend exists for the
	// current operating system.
	ErrUnsupportedOS = errors.New("unsupported operating system")
)

// KernelError preserves an opaque kernel failure code alongside the sentinel
// it maps to. Unwrap yields the sentinel, so
// errors.Is(err, contracts.ErrPortBusy) matches regardless of which backend
// produced the failure.
type KernelError struct {
	Op    string // operation that failed, e.g. "subscribe_port"
	Errno int    // raw kernel error code
	Err   error  // mapped taxonomy sentinel
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("%s: %v (errno %d)", e.Op, e.Err, e.Errno)
}

func (e *KernelError) Unwrap() error { return e.Err }

// Errno values mirrored here so the mapping stays platform-neutral.
const (
	errnoEPERM  = 1
	errnoENOENT = 2
	errnoEAGAIN = 11
	errnoENOMEM = 12
	errnoEACCES = 13
	errnoEBUSY  = 16
	errnoEINVAL = 22
	errnoENOSPC = 28
	errnoEPIPE  = 32
)

// NewKernelError maps a raw errno onto the taxonomy and wraps it. Codes with
// no specific mapping keep a generic kernel-failure sentinel so nothing is
// silently swallowed.
func NewKernelError(op string, errno int) error {
	var sentinel error
	switch errno {
	case 0:
		return nil
	case errnoEAGAIN:
		sentinel = ErrWouldBlock
	case errnoENOENT:
		sentinel = ErrNotFound
	case errnoEBUSY:
		sentinel = ErrPortBusy
	case errnoENOMEM, errnoENOSPC:
		sentinel = ErrResourceExhausted
	case errnoEINVAL:
		sentinel = ErrInvalidArgument
	case errnoEPERM, errnoEACCES:
		sentinel = ErrNotOwned
	case errnoEPIPE:
		sentinel = ErrClosed
	default:
		sentinel = errKernel
	}
	return &KernelError{Op: op, Errno: errno, Err: sentinel}
}

var errKernel = errors.New("kernel error")
