package card

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/ardnew/sdspi/pkg"
)

// Type identifies the negotiated card family. Exactly one family bit is set
// on a negotiated card; TypeBlockAddressed is orthogonal.
type Type uint8

// Card type flags.
const (
	TypeMMC            Type = 0x01 // MMC version 3
	TypeSDv1           Type = 0x02 // SD version 1
	TypeSDv2           Type = 0x04 // SD version 2 or later
	TypeBlockAddressed Type = 0x08 // Arguments are block indices (SDHC/SDXC)

	TypeSD = TypeSDv1 | TypeSDv2
)

// IsMMC returns true for MultiMediaCards.
func (t Type) IsMMC() bool {
	return t&TypeMMC != 0
}

// IsSD returns true for any SD card.
func (t Type) IsSD() bool {
	return t&TypeSD != 0
}

// IsBlockAddressed returns true if command arguments are block indices
// rather than byte offsets.
func (t Type) IsBlockAddressed() bool {
	return t&TypeBlockAddressed != 0
}

// String returns a human-readable card type.
func (t Type) String() string {
	switch {
	case t&TypeSDv2 != 0 && t.IsBlockAddressed():
		return "SDHC"
	case t&TypeSDv2 != 0:
		return "SDv2"
	case t&TypeSDv1 != 0:
		return "SDv1"
	case t.IsMMC():
		return "MMC"
	default:
		return "none"
	}
}

// Address converts a sector number to the argument a data command expects:
// the sector itself on block-addressed cards, otherwise its byte offset.
func (t Type) Address(sector uint64) (uint32, error) {
	if t.IsBlockAddressed() {
		if sector > math.MaxUint32 {
			return 0, pkg.ErrOutOfRange
		}
		return uint32(sector), nil
	}
	if sector > math.MaxUint32>>9 {
		return 0, pkg.ErrAddress
	}
	return uint32(sector << 9), nil
}

// Response is an R1 response byte.
type Response uint8

// R1 response flags.
const (
	R1Idle           Response = 0x01 // In idle state
	R1EraseReset     Response = 0x02 // Erase sequence cleared
	R1IllegalCommand Response = 0x04 // Illegal command
	R1CRCError       Response = 0x08 // Command CRC error
	R1EraseSequence  Response = 0x10 // Erase sequence error
	R1AddressError   Response = 0x20 // Misaligned address
	R1ParameterError Response = 0x40 // Argument out of range
	R1NoResponse     Response = 0x80 // No response (start bit never seen)
)

// IsValid returns true if a response was received (bit 7 clear).
func (r Response) IsValid() bool {
	return r&R1NoResponse == 0
}

// IsOK returns true if the card accepted the command and is not idle.
func (r Response) IsOK() bool {
	return r == 0
}

// IsIdle returns true if the card reported only the idle state.
func (r Response) IsIdle() bool {
	return r == R1Idle
}

// Err returns the sentinel error describing a non-zero response, or nil.
func (r Response) Err() error {
	switch {
	case r == 0:
		return nil
	case !r.IsValid():
		return pkg.ErrNoResponse
	case r&R1IllegalCommand != 0:
		return pkg.ErrIllegalCommand
	case r&R1CRCError != 0:
		return pkg.ErrCRC
	case r&R1AddressError != 0:
		return pkg.ErrAddress
	case r&R1ParameterError != 0:
		return pkg.ErrOutOfRange
	case r.IsIdle():
		return pkg.ErrNotReady
	default:
		return pkg.ErrCommandRejected
	}
}

var responseFlags = [...]string{
	"idle", "erase reset", "illegal command", "crc error",
	"erase sequence", "address error", "parameter error", "no response",
}

// String returns the set flags, e.g. "idle|illegal command".
func (r Response) String() string {
	if r == 0 {
		return "ok"
	}
	var parts []string
	for i, name := range responseFlags {
		if r&(1<<i) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Status is an R2 response: the R1 byte followed by a second status byte.
type Status uint16

// R2 second-byte flags.
const (
	R2CardLocked      Status = 0x01 // Card is locked
	R2WPEraseSkip     Status = 0x02 // Write-protect erase skip or lock/unlock failed
	R2Error           Status = 0x04 // General or unknown error
	R2ControllerError Status = 0x08 // Internal card controller error
	R2ECCFailed       Status = 0x10 // Card ECC failed
	R2WPViolation     Status = 0x20 // Write to a protected block
	R2EraseParam      Status = 0x40 // Invalid erase selection
	R2OutOfRange      Status = 0x80 // Out of range or CSD overwrite
)

// R1 returns the leading R1 byte.
func (s Status) R1() Response {
	return Response(s >> 8)
}

// IsWriteProtected returns true if the card reported a write-protect
// violation.
func (s Status) IsWriteProtected() bool {
	return s&R2WPViolation != 0
}

// Err returns the sentinel error for the most significant reported fault.
func (s Status) Err() error {
	if err := s.R1().Err(); err != nil {
		return err
	}
	switch {
	case s.IsWriteProtected(), s&R2WPEraseSkip != 0:
		return pkg.ErrWriteProtected
	case s&R2OutOfRange != 0:
		return pkg.ErrOutOfRange
	case s&(R2Error|R2ControllerError|R2ECCFailed) != 0:
		return pkg.ErrDataRejected
	}
	return nil
}

// Descriptor is a single command as sent on the wire.
type Descriptor struct {
	Index    uint8  // Command index (0-63)
	Argument uint32 // 32-bit argument
	App      bool   // Preceded by CMD55
}

// FrameSize is the size of a command frame in bytes.
const FrameSize = 6

// NewDescriptor builds the descriptor for cmd with the given argument.
func NewDescriptor(cmd Command, arg uint32) Descriptor {
	return Descriptor{Index: cmd.Index(), Argument: arg, App: cmd.IsApp()}
}

// CRC returns the trailing frame byte: the fixed valid CRC for CMD0 and
// CMD8, or a placeholder with the end bit set.
func (d *Descriptor) CRC() byte {
	switch d.Index {
	case CmdGoIdleState.Index():
		return crcGoIdle
	case CmdSendIfCond.Index():
		return crcIfCond
	}
	return crcDisabled
}

// MarshalTo serializes the command frame to buf.
// Returns the number of bytes written (always 6 if buf is large enough).
func (d *Descriptor) MarshalTo(buf []byte) int {
	if len(buf) < FrameSize {
		return 0
	}
	buf[0] = 0x40 | d.Index&0x3F
	binary.BigEndian.PutUint32(buf[1:5], d.Argument)
	buf[5] = d.CRC()
	return FrameSize
}
