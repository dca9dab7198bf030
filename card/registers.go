package card

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ardnew/sdspi/pkg"
)

// RegisterSize is the size of the CSD and CID registers in bytes.
const RegisterSize = 16

// CSD is the raw Card-Specific Data register.
type CSD [RegisterSize]byte

// Structure returns the CSD_STRUCTURE field (bits 127:126).
func (c *CSD) Structure() uint8 {
	return c[0] >> 6
}

// Version returns 2 for the SD version 2 layout (CSD_STRUCTURE 1) and 1 for
// the legacy layout used by SD version 1 cards and MMC.
func (c *CSD) Version() int {
	if c.Structure() == 1 {
		return 2
	}
	return 1
}

// SectorCount returns the card capacity in 512-byte sectors.
//
// Version 2 counts capacity in 512 KiB units: (C_SIZE+1) x 1024 sectors.
// Version 1 computes (C_SIZE+1) x 2^(C_SIZE_MULT+2) blocks of
// 2^READ_BL_LEN bytes, scaled to 512-byte sectors.
func (c *CSD) SectorCount() uint64 {
	if c.Version() == 2 {
		size := uint64(c[9]) | uint64(c[8])<<8 | uint64(c[7]&0x3F)<<16
		return (size + 1) << 10
	}
	n := uint(c[5]&0x0F) + uint(c[10]&0x80)>>7 + uint(c[9]&0x03)<<1 + 2
	size := uint64(c[8])>>6 | uint64(c[7])<<2 | uint64(c[6]&0x03)<<10
	if n < 9 {
		return (size + 1) >> (9 - n)
	}
	return (size + 1) << (n - 9)
}

// CID is the raw Card Identification register.
type CID [RegisterSize]byte

// ManufacturerID returns the MID field.
func (c *CID) ManufacturerID() uint8 {
	return c[0]
}

// ApplicationID returns the two-character OEM/application ID.
func (c *CID) ApplicationID() string {
	return printable(c[1:3])
}

// ProductName returns the five-character product name.
func (c *CID) ProductName() string {
	return printable(c[3:8])
}

// Revision returns the product revision as major and minor digits.
func (c *CID) Revision() (major, minor uint8) {
	return c[8] >> 4, c[8] & 0x0F
}

// Serial returns the product serial number.
func (c *CID) Serial() uint32 {
	return binary.BigEndian.Uint32(c[9:13])
}

// String returns a one-line summary of the identification.
func (c *CID) String() string {
	major, minor := c.Revision()
	return fmt.Sprintf("%s %s rev %d.%d serial %08X (MID 0x%02X)",
		c.ApplicationID(), c.ProductName(), major, minor, c.Serial(), c.ManufacturerID())
}

func printable(b []byte) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7E {
			return '.'
		}
		return r
	}, string(b))
}

// ReadCSD reads the Card-Specific Data register with CMD9.
func (c *Card) ReadCSD() (CSD, error) {
	var csd CSD
	if err := c.readRegister(CmdSendCSD, csd[:]); err != nil {
		return csd, err
	}
	pkg.LogDebug(pkg.ComponentCard, "CSD", "version", csd.Version(), "sectors", csd.SectorCount())
	return csd, nil
}

// ReadCID reads the Card Identification register with CMD10.
func (c *Card) ReadCID() (CID, error) {
	var cid CID
	err := c.readRegister(CmdSendCID, cid[:])
	return cid, err
}

func (c *Card) readRegister(cmd Command, buf []byte) error {
	if r := c.Command(cmd, 0); !r.IsOK() {
		return fmt.Errorf("%s returned %s: %w", cmd, r, r.Err())
	}
	if err := c.receive(buf); err != nil {
		return fmt.Errorf("%s: %w", cmd, err)
	}
	return nil
}

// ReadStatus reads the two-byte R2 card status with CMD13. It is used
// after a rejected write to tell write protection apart from other faults.
func (c *Card) ReadStatus() (Status, error) {
	r := c.Command(CmdSendStatus, 0)
	if !r.IsValid() {
		return Status(r) << 8, fmt.Errorf("%s: %w", CmdSendStatus, pkg.ErrNoResponse)
	}
	s := Status(r)<<8 | Status(c.bus.Recv())
	pkg.LogDebug(pkg.ComponentCard, "status", "r1", r, "r2", uint8(s))
	return s, nil
}
