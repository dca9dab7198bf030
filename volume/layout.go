package volume

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

// On-disk offsets within a boot sector or master boot record.
const (
	offsetExtension  = 36  // Start of the FAT12/16 or FAT32 extended BPB
	offsetPartitions = 446 // MBR partition table

	bootSignature  = 0xAA55
	partitionSlots = 4
)

// fatTag is the type-string prefix identifying a FAT boot sector.
var fatTag = [3]byte{'F', 'A', 'T'}

// biosParameterBlock is the DOS 3.31 BPB shared by every FAT variant,
// including the jump instruction and OEM name that precede it.
type biosParameterBlock struct {
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

// extendedBPB is the tail common to the FAT12/16 and FAT32 extensions.
type extendedBPB struct {
	DriveNumber   uint8
	Reserved      uint8
	BootSignature uint8
	VolumeID      uint32
	VolumeLabel   [11]byte
	FSType        [8]byte
}

// fat16Extension follows the BPB on FAT12 and FAT16 volumes.
type fat16Extension struct {
	Extended extendedBPB
}

// fat32Extension follows the BPB on FAT32 volumes.
type fat32Extension struct {
	SectorsPerFAT32 uint32
	ExtFlags        uint16
	FSVersion       uint16
	RootCluster     uint32
	FSInfoSector    uint16
	BackupBoot      uint16
	Reserved        [12]byte
	Extended        extendedBPB
}

// partitionEntry is one 16-byte slot of the MBR partition table.
type partitionEntry struct {
	Status   uint8
	FirstCHS [3]byte
	Type     uint8
	LastCHS  [3]byte
	FirstLBA uint32
	Sectors  uint32
}

// masterBootRecord is the partition table and the boot signature at offset
// 510, which together fill the end of sector 0.
type masterBootRecord struct {
	Partitions [partitionSlots]partitionEntry
	Signature  uint16
}

func unpack(data []byte, v interface{}) error {
	return restruct.Unpack(data, binary.LittleEndian, v)
}

// hasFATTag reports whether fsType begins with "FAT".
func hasFATTag(fsType [8]byte) bool {
	return fsType[0] == fatTag[0] && fsType[1] == fatTag[1] && fsType[2] == fatTag[2]
}
