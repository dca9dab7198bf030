package disk

import (
	"errors"
	"fmt"

	"github.com/ardnew/sdspi/pkg"
)

// Code is a block device error code, numbered as a DOS block driver reports
// it in the low byte of its status word.
type Code uint8

// Error codes.
const (
	WriteProtected Code = 0x00 // Media is write protected
	NotReady       Code = 0x02 // Card absent, not initialized, or unresponsive
	UnknownCommand Code = 0x03 // Unsupported request
	CRC            Code = 0x04 // Data check failure or invalid parameter
	Seek           Code = 0x06 // Sector cannot be addressed
	NoVolumeFound  Code = 0x07 // No FAT volume on the card
	BadSector      Code = 0x08 // Sector could not be transferred
	GeneralFailure Code = 0x0C // Anything else
)

// String returns a human-readable error code.
func (c Code) String() string {
	switch c {
	case WriteProtected:
		return "write protected"
	case NotReady:
		return "not ready"
	case UnknownCommand:
		return "unknown command"
	case CRC:
		return "CRC error"
	case Seek:
		return "seek error"
	case NoVolumeFound:
		return "no volume found"
	case BadSector:
		return "bad sector"
	case GeneralFailure:
		return "general failure"
	default:
		return fmt.Sprintf("Code(0x%02X)", uint8(c))
	}
}

// needsReset returns true if the code leaves the card in an unknown state
// that only re-initialization can clear.
func (c Code) needsReset() bool {
	switch c {
	case NotReady, BadSector, Seek, GeneralFailure:
		return true
	}
	return false
}

// Error describes a failed disk operation.
type Error struct {
	Op   string // Operation that failed: "initialize", "read", "write" or "ioctl"
	Code Code   // Classified error code
	Err  error  // Underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("disk %s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("disk %s: %s: %v", e.Op, e.Code, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Result returns the disk I/O result class of the failure.
func (e *Error) Result() pkg.Result {
	switch e.Code {
	case WriteProtected:
		return pkg.ResultWriteProtected
	case NotReady:
		return pkg.ResultNotReady
	case CRC:
		return pkg.ResultParameter
	case Seek, BadSector:
		return pkg.ResultError
	}
	if e.Err != nil {
		return pkg.ResultOf(e.Err)
	}
	return pkg.ResultFailure
}

// CodeOf returns the code carried by err. Errors that did not come from a
// Disk are classified as if they had.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return classify(err)
}

// classify maps a protocol error onto a Code.
func classify(err error) Code {
	switch {
	case errors.Is(err, pkg.ErrWriteProtected):
		return WriteProtected
	case errors.Is(err, pkg.ErrNoVolume):
		return NoVolumeFound
	case errors.Is(err, pkg.ErrNotReady),
		errors.Is(err, pkg.ErrTimeout),
		errors.Is(err, pkg.ErrNoResponse),
		errors.Is(err, pkg.ErrNotIdle):
		return NotReady
	case errors.Is(err, pkg.ErrCRC),
		errors.Is(err, pkg.ErrInvalidParameter),
		errors.Is(err, pkg.ErrBufferTooSmall):
		return CRC
	case errors.Is(err, pkg.ErrAddress),
		errors.Is(err, pkg.ErrOutOfRange):
		return Seek
	case errors.Is(err, pkg.ErrTokenTimeout),
		errors.Is(err, pkg.ErrBadToken),
		errors.Is(err, pkg.ErrDataRejected),
		errors.Is(err, pkg.ErrCommandRejected),
		errors.Is(err, pkg.ErrIllegalCommand):
		return BadSector
	case errors.Is(err, pkg.ErrNotSupported):
		return UnknownCommand
	default:
		return GeneralFailure
	}
}
