package disk

import (
	"fmt"
	"math"

	"github.com/ardnew/sdspi/card"
	"github.com/ardnew/sdspi/pkg"
)

// IoctlCode selects a control query.
type IoctlCode uint8

// Control codes.
const (
	IoctlSync           IoctlCode = 0  // Wait for pending writes to finish
	IoctlGetSectorCount IoctlCode = 1  // Card capacity in sectors, from the CSD
	IoctlGetSectorSize  IoctlCode = 2  // Sector size in bytes
	IoctlGetBlockSize   IoctlCode = 3  // Erase block size in sectors
	IoctlGetType        IoctlCode = 10 // Negotiated card.Type flags
)

// String returns the name of the control code.
func (c IoctlCode) String() string {
	switch c {
	case IoctlSync:
		return "sync"
	case IoctlGetSectorCount:
		return "get sector count"
	case IoctlGetSectorSize:
		return "get sector size"
	case IoctlGetBlockSize:
		return "get block size"
	case IoctlGetType:
		return "get type"
	default:
		return fmt.Sprintf("IoctlCode(%d)", uint8(c))
	}
}

// Ioctl performs a control query and returns its value. Sync returns 0.
// The sector count covers the whole card, not just the volume, and is
// clamped to the largest uint32.
func (d *Disk) Ioctl(code IoctlCode) (uint32, error) {
	if !d.Ready() {
		return 0, d.fail("ioctl", pkg.ErrNotReady)
	}

	switch code {
	case IoctlSync:
		err := d.card.Select()
		d.card.Deselect()
		if err != nil {
			return 0, d.fail("ioctl", err)
		}
		return 0, nil

	case IoctlGetSectorCount:
		csd, err := d.card.ReadCSD()
		d.card.Deselect()
		if err != nil {
			return 0, d.fail("ioctl", err)
		}
		n := csd.SectorCount()
		if n > math.MaxUint32 {
			n = math.MaxUint32
		}
		return uint32(n), nil

	case IoctlGetSectorSize:
		return SectorSize, nil

	case IoctlGetBlockSize:
		return card.EraseBlockSize, nil

	case IoctlGetType:
		return uint32(d.card.Type()), nil

	default:
		return 0, d.fail("ioctl", fmt.Errorf("%w: control code %s", pkg.ErrInvalidParameter, code))
	}
}

// MediaChange reports whether the media may have changed since the last
// check.
type MediaChange int8

// Media change states.
const (
	MediaChanged   MediaChange = -1 // Media must be assumed changed
	MediaUnknown   MediaChange = 0  // The card cannot tell
	MediaUnchanged MediaChange = 1  // Media has not changed
)

// MediaCheck reports a change whenever the disk needs re-initialization.
// SPI cards have no change-detect line, so a ready disk reports unknown.
func (d *Disk) MediaCheck() MediaChange {
	if !d.Ready() {
		return MediaChanged
	}
	return MediaUnknown
}

// Form factor reported for the card in device parameters.
const formFactorOther = 8

// Parameters is the device geometry a DOS kernel requests through the
// generic IOCTL interface.
type Parameters struct {
	FormFactor uint8  // Device form factor
	Attributes uint16 // Physical drive attributes
	Cylinders  uint16 // Derived from the BPB geometry
	MediaType  uint8  // Media type
	BPB        BPB    // Volume geometry
}

// Parameters returns the device geometry of the located volume. Cylinders
// is 0 if the volume has no CHS geometry.
func (d *Disk) Parameters() Parameters {
	p := Parameters{
		FormFactor: formFactorOther,
		BPB:        d.bpb,
	}
	if tracks := uint32(d.bpb.SectorsPerTrack) * uint32(d.bpb.Heads); tracks != 0 {
		cyl := d.bpb.TotalSectors / tracks
		if cyl > math.MaxUint16 {
			cyl = math.MaxUint16
		}
		p.Cylinders = uint16(cyl)
	}
	return p
}
