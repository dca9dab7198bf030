// Package disk provides a sector-addressed block device on an SD or MMC card
// attached over SPI.
//
// A [Disk] negotiates with the card, locates a FAT volume on it and then
// serves reads and writes relative to the start of that volume:
//
//	d := disk.New(b)
//	if err := d.Initialize(0); err != nil {
//	    return err
//	}
//	buf := make([]byte, 4*disk.SectorSize)
//	err := d.Read(0, 4, buf)
//
// # Errors
//
// Every failure is returned as an [*Error] carrying a [Code], the error
// numbering a DOS block driver reports. The underlying protocol error stays
// reachable through errors.Is. Codes that leave the card in an unknown state
// (not ready, bad sector, seek and general failure) mark the disk as needing
// a reset; transfers are refused until Initialize runs again.
package disk
