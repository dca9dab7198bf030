package driver

import (
	"fmt"

	"github.com/ardnew/sdspi/disk"
)

// Command is a block device driver request code.
type Command uint8

// Request codes.
const (
	CmdInit         Command = 0  // Initialize the driver
	CmdMediaCheck   Command = 1  // Query media change
	CmdGetBPB       Command = 2  // Build the BIOS parameter block
	CmdInput        Command = 4  // Read sectors
	CmdOutput       Command = 8  // Write sectors
	CmdOutputVerify Command = 9  // Write sectors with verify
	CmdGenericIOCTL Command = 19 // Generic IOCTL
	CmdGetLogical   Command = 23 // Get logical drive map
	CmdSetLogical   Command = 24 // Set logical drive map
	CmdIOCTLQuery   Command = 25 // Generic IOCTL support query
)

// String returns the request name.
func (c Command) String() string {
	switch c {
	case CmdInit:
		return "init"
	case CmdMediaCheck:
		return "media check"
	case CmdGetBPB:
		return "get BPB"
	case CmdInput:
		return "input"
	case CmdOutput:
		return "output"
	case CmdOutputVerify:
		return "output verify"
	case CmdGenericIOCTL:
		return "generic IOCTL"
	case CmdGetLogical:
		return "get logical"
	case CmdSetLogical:
		return "set logical"
	case CmdIOCTLQuery:
		return "IOCTL query"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// Status is the status word returned in a request header.
type Status uint16

// Status word bits. The low byte holds a disk.Code when StatusError is set.
const (
	StatusError Status = 0x8000 // Request failed
	StatusBusy  Status = 0x0200 // Device busy
	StatusDone  Status = 0x0100 // Request complete
)

// failed returns the status word for a request that failed with code.
func failed(code disk.Code) Status {
	return StatusDone | StatusError | Status(code)
}

// IsError returns true if the error bit is set.
func (s Status) IsError() bool {
	return s&StatusError != 0
}

// IsDone returns true if the done bit is set.
func (s Status) IsDone() bool {
	return s&StatusDone != 0
}

// Code returns the error code in the low byte.
func (s Status) Code() disk.Code {
	return disk.Code(s & 0xFF)
}

// String returns a human-readable status word.
func (s Status) String() string {
	switch {
	case s.IsError():
		return fmt.Sprintf("error: %s", s.Code())
	case s.IsDone():
		return "done"
	default:
		return fmt.Sprintf("Status(0x%04X)", uint16(s))
	}
}

// longStart marks a request whose start sector is in LongStart.
const longStart = 0xFFFF

// Request is a request header together with the fields of every request
// this driver handles. Dispatch reads the input fields for the request's
// Command and fills in Status and the outputs.
type Request struct {
	Command Command
	Unit    uint8
	Status  Status

	// Init input: the device line after "DEVICE=". Output: unit count.
	Args  string
	Units uint8

	// Input and output: the starting sector (0xFFFF selects LongStart),
	// the sector count and the transfer buffer.
	Start     uint16
	LongStart uint32
	Count     uint16
	Buffer    []byte

	// Media check output.
	MediaChange disk.MediaChange

	// Get BPB output.
	BPB disk.BPB

	// Generic IOCTL and query input: function category and code.
	Major uint8
	Minor uint8

	// Generic IOCTL outputs.
	Parameters    disk.Parameters
	AccessAllowed bool
}

// Err returns the failure recorded in Status as a *disk.Error, or nil if
// the request succeeded.
func (r *Request) Err() error {
	if !r.Status.IsError() {
		return nil
	}
	return &disk.Error{Op: r.Command.String(), Code: r.Status.Code()}
}

// Sector returns the starting sector of an input or output request.
func (r *Request) Sector() uint32 {
	if r.Start == longStart {
		return r.LongStart
	}
	return uint32(r.Start)
}
