package driver

import (
	"github.com/ardnew/sdspi/disk"
	"github.com/ardnew/sdspi/pkg"
)

// CategoryDisk is the generic IOCTL category of block devices.
const CategoryDisk = 0x08

// Generic IOCTL functions of the disk category.
const (
	FuncSetParameters = 0x40 // Set device parameters
	FuncWriteTrack    = 0x41 // Write one track
	FuncFormatTrack   = 0x42 // Format one track
	FuncSetMediaID    = 0x46 // Set media ID
	FuncGetAccess     = 0x47 // Get access flag
	FuncGetParameters = 0x60 // Get device parameters
	FuncReadTrack     = 0x61 // Read one track
	FuncVerifyTrack   = 0x62 // Verify one track
	FuncGetMediaID    = 0x66 // Get media ID
	FuncSetAccess     = 0x67 // Set access flag
	FuncSenseMedia    = 0x68 // Sense media type
)

// genericIOCTL answers the functions FORMAT needs. Parameters and access
// queries are filled in; the setters and track formatting succeed without
// touching the card.
func (d *Driver) genericIOCTL(r *Request) {
	if r.Major == CategoryDisk {
		switch r.Minor {
		case FuncGetParameters:
			r.Parameters = d.disk.Parameters()
			r.Status = StatusDone
			return
		case FuncGetAccess:
			r.AccessAllowed = true
			r.Status = StatusDone
			return
		case FuncGetMediaID, FuncSetMediaID, FuncSetAccess, FuncSetParameters, FuncFormatTrack:
			r.Status = StatusDone
			return
		}
	}
	pkg.LogWarn(pkg.ComponentDriver, "unimplemented IOCTL", "unit", r.Unit, "major", r.Major, "minor", r.Minor)
	r.Status = failed(disk.UnknownCommand)
}

// ioctlQuery reports whether a generic IOCTL function is supported.
func (d *Driver) ioctlQuery(r *Request) {
	if r.Major == CategoryDisk {
		switch r.Minor {
		case FuncGetAccess, FuncSetAccess, FuncSetMediaID,
			FuncGetParameters, FuncSetParameters, FuncFormatTrack:
			r.Status = StatusDone
			return
		}
	}
	r.Status = failed(disk.UnknownCommand)
}
