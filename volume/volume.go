package volume

import (
	"fmt"

	"github.com/ardnew/sdspi/pkg"
)

// SectorSize is the only sector size a volume may use.
const SectorSize = 512

// MaxPartition is the highest partition number that can be requested.
const MaxPartition = partitionSlots

// SectorReader reads whole sectors from the underlying device.
type SectorReader interface {
	// ReadSector reads the absolute sector into buf, which holds at least
	// SectorSize bytes.
	ReadSector(sector uint32, buf []byte) error
}

// Class is the result of inspecting a candidate boot sector.
type Class uint8

// Boot sector classes.
const (
	ClassFAT           Class = iota // FAT boot sector
	ClassNotFAT                     // Valid boot record without a FAT tag
	ClassNotBootSector              // Missing 0xAA55 signature
	ClassIOFault                    // Sector could not be read
)

// String returns a human-readable class.
func (c Class) String() string {
	switch c {
	case ClassFAT:
		return "FAT"
	case ClassNotFAT:
		return "not FAT"
	case ClassNotBootSector:
		return "not a boot sector"
	case ClassIOFault:
		return "I/O fault"
	default:
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
}

// BPB is the normalized geometry of a discovered FAT volume.
type BPB struct {
	SectorSize        uint16 // Bytes per sector, always 512
	SectorsPerCluster uint8  // Allocation unit
	ReservedSectors   uint16 // Sectors before the first FAT, never 0
	FATCount          uint8  // FAT copies; 0 on disk is read as 2
	RootEntries       uint16 // Root directory entries (0 on FAT32)
	TotalSectors16    uint16 // Raw 16-bit total, 0 when the 32-bit field is used
	TotalSectors      uint32 // Normalized total sectors
	Media             uint8  // Media descriptor byte
	SectorsPerFAT     uint32 // 16-bit field, or the FAT32 field when that is 0
	SectorsPerTrack   uint16 // CHS geometry
	Heads             uint16 // CHS geometry
	HiddenSectors     uint32 // Raw hidden sector count
	PartitionStart    uint32 // Absolute sector of the boot sector
}

// IsFAT32 returns true if the volume uses the FAT32 layout, which has no
// fixed root directory.
func (b *BPB) IsFAT32() bool {
	return b.RootEntries == 0 && b.TotalSectors16 == 0
}

// Locator finds the FAT volume on a device.
type Locator struct {
	reader SectorReader
	buf    [SectorSize]byte
}

// NewLocator creates a locator reading through r.
func NewLocator(r SectorReader) *Locator {
	return &Locator{reader: r}
}

// CheckBootSector reads sector and classifies it. The error is non-nil only
// for ClassIOFault. After a successful read the sector stays in the
// locator's buffer.
func (l *Locator) CheckBootSector(sector uint32) (Class, error) {
	if err := l.reader.ReadSector(sector, l.buf[:]); err != nil {
		return ClassIOFault, err
	}
	return classify(l.buf[:]), nil
}

func classify(sector []byte) Class {
	var mbr masterBootRecord
	if err := unpack(sector[offsetPartitions:], &mbr); err != nil || mbr.Signature != bootSignature {
		return ClassNotBootSector
	}

	var ext16 fat16Extension
	if err := unpack(sector[offsetExtension:], &ext16); err == nil && hasFATTag(ext16.Extended.FSType) {
		return ClassFAT
	}
	var ext32 fat32Extension
	if err := unpack(sector[offsetExtension:], &ext32); err == nil && hasFATTag(ext32.Extended.FSType) {
		return ClassFAT
	}
	return ClassNotFAT
}

// FindVolume locates a FAT volume and returns its parameters.
//
// Partition 0 selects automatically: sector 0 is used directly if it is a
// FAT boot sector, otherwise the MBR partition table is scanned in order
// for the first FAT volume. Partitions 1 to 4 force that table slot. A read
// failure aborts the search and is returned wrapped; exhausting the
// candidates or finding an unusable BPB returns pkg.ErrNoVolume.
func (l *Locator) FindVolume(partition uint8) (BPB, error) {
	if partition > MaxPartition {
		return BPB{}, fmt.Errorf("partition %d: %w", partition, pkg.ErrInvalidParameter)
	}

	var start uint32
	class, err := l.CheckBootSector(start)
	if class == ClassNotFAT || (class == ClassFAT && partition != 0) {
		var mbr masterBootRecord
		if err := unpack(l.buf[offsetPartitions:], &mbr); err != nil {
			return BPB{}, fmt.Errorf("partition table: %w", err)
		}

		var slots [partitionSlots]uint32
		for i, p := range mbr.Partitions {
			if p.Type != 0 {
				slots[i] = p.FirstLBA
			}
		}

		i := 0
		if partition != 0 {
			i = int(partition) - 1
		}
		for {
			start = slots[i]
			if start != 0 {
				class, err = l.CheckBootSector(start)
			} else {
				class = ClassNotBootSector
			}
			pkg.LogDebug(pkg.ComponentVolume, "partition candidate",
				"slot", i+1, "sector", start, "class", class)

			if class == ClassFAT || class == ClassIOFault || partition != 0 {
				break
			}
			if i++; i >= partitionSlots {
				break
			}
		}
	}

	switch class {
	case ClassIOFault:
		return BPB{}, fmt.Errorf("read sector %d: %w", start, err)
	case ClassFAT:
	default:
		pkg.LogDebug(pkg.ComponentVolume, "no FAT volume", "partition", partition, "class", class)
		return BPB{}, pkg.ErrNoVolume
	}

	bpb, err := l.parse(start)
	if err != nil {
		return BPB{}, err
	}
	pkg.LogInfo(pkg.ComponentVolume, "FAT volume found",
		"partition", partition, "start", start, "sectors", bpb.TotalSectors)
	return bpb, nil
}

// parse decodes the boot sector held in the buffer.
func (l *Locator) parse(start uint32) (BPB, error) {
	var raw biosParameterBlock
	if err := unpack(l.buf[:], &raw); err != nil {
		return BPB{}, fmt.Errorf("boot sector %d: %w", start, err)
	}

	if raw.BytesPerSector != SectorSize {
		pkg.LogDebug(pkg.ComponentVolume, "unsupported sector size", "size", raw.BytesPerSector)
		return BPB{}, fmt.Errorf("sector size %d: %w", raw.BytesPerSector, pkg.ErrNoVolume)
	}
	if raw.ReservedSectors == 0 {
		return BPB{}, fmt.Errorf("no reserved sectors: %w", pkg.ErrNoVolume)
	}

	bpb := BPB{
		SectorSize:        SectorSize,
		SectorsPerCluster: raw.SectorsPerCluster,
		ReservedSectors:   raw.ReservedSectors,
		FATCount:          raw.FATCount,
		RootEntries:       raw.RootEntries,
		TotalSectors16:    raw.TotalSectors16,
		TotalSectors:      uint32(raw.TotalSectors16),
		Media:             raw.Media,
		SectorsPerFAT:     uint32(raw.SectorsPerFAT16),
		SectorsPerTrack:   raw.SectorsPerTrack,
		Heads:             raw.Heads,
		HiddenSectors:     raw.HiddenSectors,
		PartitionStart:    start,
	}
	if bpb.FATCount == 0 {
		bpb.FATCount = 2
	}
	if bpb.TotalSectors == 0 {
		bpb.TotalSectors = raw.TotalSectors32
	}
	if bpb.SectorsPerFAT == 0 {
		var ext32 fat32Extension
		if err := unpack(l.buf[offsetExtension:], &ext32); err == nil {
			bpb.SectorsPerFAT = ext32.SectorsPerFAT32
		}
	}
	return bpb, nil
}
