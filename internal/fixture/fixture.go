// Package fixture builds raw disk images containing FAT boot sectors and
// MBR partition tables for tests and demos.
package fixture

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

// SectorSize is the sector size of every image built here.
const SectorSize = 512

// Partition type bytes.
const (
	TypeEmpty = 0x00
	TypeFAT12 = 0x01
	TypeFAT16 = 0x06
	TypeFAT32 = 0x0C // FAT32 with LBA addressing
	TypeLinux = 0x83
	TypeNTFS  = 0x07
)

const (
	signature  = 0xAA55
	tableStart = 446
)

// Layout selects the extended BPB written after the common fields.
type Layout uint8

// Boot sector layouts.
const (
	LayoutFAT16 Layout = iota // FAT12/16 extension, type string at offset 54
	LayoutFAT32               // FAT32 extension, type string at offset 82
	LayoutNone                // Valid signature but no FAT type string
)

// BootSector describes a volume boot record.
type BootSector struct {
	Layout            Layout
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntries       uint16
	TotalSectors      uint32
	Media             uint8
	SectorsPerFAT     uint32
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	Label             string
	NoSignature       bool
}

// FAT16 returns a FAT16 boot sector describing total sectors.
func FAT16(total uint32) BootSector {
	return BootSector{
		Layout:            LayoutFAT16,
		SectorSize:        SectorSize,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		FATCount:          2,
		RootEntries:       512,
		TotalSectors:      total,
		Media:             0xF8,
		SectorsPerFAT:     (total/4*2 + SectorSize - 1) / SectorSize,
		SectorsPerTrack:   63,
		Heads:             16,
		Label:             "SDSPI",
	}
}

// FAT32 returns a FAT32 boot sector describing total sectors.
func FAT32(total uint32) BootSector {
	return BootSector{
		Layout:            LayoutFAT32,
		SectorSize:        SectorSize,
		SectorsPerCluster: 8,
		ReservedSectors:   32,
		FATCount:          2,
		TotalSectors:      total,
		Media:             0xF8,
		SectorsPerFAT:     (total/8*4 + SectorSize - 1) / SectorSize,
		SectorsPerTrack:   63,
		Heads:             255,
		Label:             "SDSPI",
	}
}

type commonBPB struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATCount          uint8
	RootEntries       uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

type extendedBPB struct {
	DriveNumber   uint8
	Reserved      uint8
	BootSignature uint8
	VolumeID      uint32
	VolumeLabel   [11]byte
	FSType        [8]byte
}

type fat32Fields struct {
	SectorsPerFAT32 uint32
	ExtFlags        uint16
	FSVersion       uint16
	RootCluster     uint32
	FSInfoSector    uint16
	BackupBoot      uint16
	Reserved        [12]byte
}

// Bytes encodes the boot sector.
func (b BootSector) Bytes() []byte {
	common := commonBPB{
		JumpBoot:          [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    b.SectorSize,
		SectorsPerCluster: b.SectorsPerCluster,
		ReservedSectors:   b.ReservedSectors,
		FATCount:          b.FATCount,
		RootEntries:       b.RootEntries,
		Media:             b.Media,
		SectorsPerTrack:   b.SectorsPerTrack,
		Heads:             b.Heads,
		HiddenSectors:     b.HiddenSectors,
	}
	copy(common.OEMName[:], "SDSPI1.0")
	if b.TotalSectors < 0x10000 && b.Layout != LayoutFAT32 {
		common.TotalSectors16 = uint16(b.TotalSectors)
	} else {
		common.TotalSectors32 = b.TotalSectors
	}

	ext := extendedBPB{DriveNumber: 0x80, BootSignature: 0x29, VolumeID: 0x5D5D1234}
	copy(ext.VolumeLabel[:], padded(b.Label, 11))

	var tail []byte
	switch b.Layout {
	case LayoutFAT32:
		common.JumpBoot[1] = 0x58
		tail = pack(&fat32Fields{
			SectorsPerFAT32: b.SectorsPerFAT,
			RootCluster:     2,
			FSInfoSector:    1,
			BackupBoot:      6,
		})
		copy(ext.FSType[:], "FAT32   ")
	case LayoutFAT16:
		common.SectorsPerFAT16 = uint16(b.SectorsPerFAT)
		copy(ext.FSType[:], "FAT16   ")
	default:
		common.SectorsPerFAT16 = uint16(b.SectorsPerFAT)
		copy(ext.FSType[:], "NO NAME ")
	}

	sector := make([]byte, SectorSize)
	n := copy(sector, pack(&common))
	n += copy(sector[n:], tail)
	copy(sector[n:], pack(&ext))
	if !b.NoSignature {
		binary.LittleEndian.PutUint16(sector[510:], signature)
	}
	return sector
}

// Partition is one MBR partition table entry.
type Partition struct {
	Type    uint8
	Start   uint32
	Sectors uint32
	Active  bool
}

type partitionEntry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	FirstLBA uint32
	Sectors  uint32
}

// MBR encodes a master boot record holding up to four partitions.
func MBR(parts ...Partition) []byte {
	sector := make([]byte, SectorSize)
	for i, p := range parts {
		if i >= 4 {
			break
		}
		e := partitionEntry{
			Type:     p.Type,
			FirstCHS: [3]byte{0xFE, 0xFF, 0xFF},
			LastCHS:  [3]byte{0xFE, 0xFF, 0xFF},
			FirstLBA: p.Start,
			Sectors:  p.Sectors,
		}
		if p.Active {
			e.Status = 0x80
		}
		copy(sector[tableStart+16*i:], pack(&e))
	}
	binary.LittleEndian.PutUint16(sector[510:], signature)
	return sector
}

// Image is a raw disk image under construction.
type Image struct {
	data []byte
}

// NewImage creates a zeroed image of the given number of sectors.
func NewImage(sectors uint32) *Image {
	return &Image{data: make([]byte, uint64(sectors)*SectorSize)}
}

// Put copies data to the image starting at sector.
func (m *Image) Put(sector uint32, data []byte) *Image {
	copy(m.data[uint64(sector)*SectorSize:], data)
	return m
}

// Bytes returns the image contents.
func (m *Image) Bytes() []byte {
	return m.data
}

// Partitioned builds an image with an MBR at sector 0 and a boot sector of
// the matching layout at the start of every FAT partition.
func Partitioned(sectors uint32, parts ...Partition) []byte {
	img := NewImage(sectors).Put(0, MBR(parts...))
	for _, p := range parts {
		switch p.Type {
		case TypeFAT12, TypeFAT16:
			img.Put(p.Start, FAT16(p.Sectors).Bytes())
		case TypeFAT32:
			img.Put(p.Start, FAT32(p.Sectors).Bytes())
		}
	}
	return img.Bytes()
}

// Superfloppy builds an image whose sector 0 is a FAT16 boot sector.
func Superfloppy(sectors uint32) []byte {
	return NewImage(sectors).Put(0, FAT16(sectors).Bytes()).Bytes()
}

// pack encodes the struct v points to; v must be a pointer.
func pack(v interface{}) []byte {
	data, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		panic(err)
	}
	return data
}

func padded(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}
