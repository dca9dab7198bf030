package pkg

import "errors"

// Card protocol errors.
var (
	// ErrTimeout indicates the card did not become ready within its polling budget.
	ErrTimeout = errors.New("card ready timeout")

	// ErrNoResponse indicates a command response never cleared its start bit.
	ErrNoResponse = errors.New("no command response")

	// ErrNotIdle indicates the card never entered or left the idle state.
	ErrNotIdle = errors.New("card idle state not reached")

	// ErrCommandRejected indicates an R1 response with error bits set.
	ErrCommandRejected = errors.New("command rejected")

	// ErrIllegalCommand indicates the card does not implement the command.
	ErrIllegalCommand = errors.New("illegal command")

	// ErrAddress indicates a misaligned or out-of-range block address.
	ErrAddress = errors.New("address error")

	// ErrCRC indicates the card reported a CRC failure.
	ErrCRC = errors.New("CRC error")

	// ErrTokenTimeout indicates no start-of-data token arrived.
	ErrTokenTimeout = errors.New("data token timeout")

	// ErrBadToken indicates an unexpected byte where a data token was expected.
	ErrBadToken = errors.New("invalid data token")

	// ErrDataRejected indicates the card did not accept a data block.
	ErrDataRejected = errors.New("data block rejected")

	// ErrWriteProtected indicates the card refused a write to protected media.
	ErrWriteProtected = errors.New("write protected")

	// ErrNotReady indicates the card is not initialized or negotiation failed.
	ErrNotReady = errors.New("card not ready")

	// ErrOutOfRange indicates a sector address that cannot be expressed to the card.
	ErrOutOfRange = errors.New("sector out of range")

	// ErrNoVolume indicates no FAT volume was found on the card.
	ErrNoVolume = errors.New("no FAT volume found")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrFailure indicates a failure outside every other class.
	ErrFailure = errors.New("general failure")
)

// Result is the outcome class of a disk I/O primitive.
type Result int

// Result values.
const (
	ResultOK             Result = iota // Operation succeeded
	ResultError                        // Read/write error
	ResultWriteProtected               // Media is write protected
	ResultNotReady                     // Drive not ready
	ResultParameter                    // Invalid parameter
	ResultFailure                      // Unclassified failure
)

// String returns a string representation of the result.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultWriteProtected:
		return "write protected"
	case ResultNotReady:
		return "not ready"
	case ResultParameter:
		return "parameter error"
	case ResultFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Error returns the representative error for the result.
func (r Result) Error() error {
	switch r {
	case ResultOK:
		return nil
	case ResultWriteProtected:
		return ErrWriteProtected
	case ResultNotReady:
		return ErrNotReady
	case ResultParameter:
		return ErrInvalidParameter
	case ResultError:
		return ErrDataRejected
	default:
		return ErrFailure
	}
}

// ResultOf classifies err into the Result it belongs to.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrWriteProtected):
		return ResultWriteProtected
	case errors.Is(err, ErrNotReady),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrNoResponse),
		errors.Is(err, ErrNotIdle):
		return ResultNotReady
	case errors.Is(err, ErrInvalidParameter),
		errors.Is(err, ErrBufferTooSmall):
		return ResultParameter
	case errors.Is(err, ErrDataRejected),
		errors.Is(err, ErrTokenTimeout),
		errors.Is(err, ErrBadToken),
		errors.Is(err, ErrCommandRejected),
		errors.Is(err, ErrIllegalCommand):
		return ResultError
	default:
		return ResultFailure
	}
}
