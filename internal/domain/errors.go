package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every error surfaced by the fleet wraps exactly one of these.
var (
	// ErrUsage is returned for malformed or empty input, before any I/O.
	ErrUsage = errors.New("usage error")

	// ErrInsufficientFunds is returned when a wallet cannot cover a job.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrJobState is returned when an operation conflicts with the job slot.
	ErrJobState = errors.New("job state error")

	// ErrTransport is returned for network, HTTP or JSON failures.
	ErrTransport = errors.New("transport error")

	// ErrProtocol is returned for unexpected or unroutable websocket messages.
	ErrProtocol = errors.New("protocol error")

	// ErrSigning is returned when keypair or signature construction fails. Not retryable.
	ErrSigning = errors.New("signing error")
)

// Specific errors.
var (
	ErrFundingJobNotStarted = fmt.Errorf("%w: there is no active funding job", ErrJobState)
	ErrJobActive            = fmt.Errorf("%w: a funding job is already active", ErrJobState)
	ErrJobBusy              = fmt.Errorf("%w: another job is running", ErrJobState)

	ErrInsufficientFunding = fmt.Errorf("%w: distribution wallet balance below required total", ErrInsufficientFunds)
	ErrInsufficientSol     = fmt.Errorf("%w: source wallet balance below per-wallet amount", ErrInsufficientFunds)

	ErrEncoding       = errors.New("encoding error")
	ErrPartialFailure = errors.New("one or more transfers failed")
)

// ErrorClass names an error class for reporting.
type ErrorClass string

const (
	ClassUsage             ErrorClass = "usage"
	ClassInsufficientFunds ErrorClass = "insufficient_funds"
	ClassJobState          ErrorClass = "job_state"
	ClassTransport         ErrorClass = "transport"
	ClassProtocol          ErrorClass = "protocol"
	ClassSigning           ErrorClass = "signing"
	ClassInternal          ErrorClass = "internal"
)

// Classify maps err onto its error class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUsage):
		return ClassUsage
	case errors.Is(err, ErrInsufficientFunds):
		return ClassInsufficientFunds
	case errors.Is(err, ErrJobState):
		return ClassJobState
	case errors.Is(err, ErrTransport):
		return ClassTransport
	case errors.Is(err, ErrProtocol):
		return ClassProtocol
	case errors.Is(err, ErrSigning):
		return ClassSigning
	default:
		return ClassInternal
	}
}

// IsConflict reports whether err is recovered at the job boundary and
// reported as a conflict rather than an internal failure.
func IsConflict(err error) bool {
	c := Classify(err)
	return c == ClassInsufficientFunds || c == ClassJobState
}

// Usagef builds an ErrUsage with a formatted message.
func Usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}
