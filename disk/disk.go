package disk

import (
	"fmt"

	"github.com/ardnew/sdspi/bus"
	"github.com/ardnew/sdspi/card"
	"github.com/ardnew/sdspi/pkg"
	"github.com/ardnew/sdspi/volume"
)

// SectorSize is the size of every sector transferred by a Disk.
const SectorSize = card.BlockSize

// BPB is the geometry of the volume a Disk serves.
type BPB = volume.BPB

// Status is the lifecycle state of a Disk.
type Status uint8

// Disk states.
const (
	StatusUninitialized Status = iota // No successful Initialize yet
	StatusReady                       // Card negotiated and volume located
	StatusFault                       // Last Initialize failed
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusReady:
		return "ready"
	case StatusFault:
		return "fault"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// Disk is a sector-addressed block device on an SD or MMC card.
//
// Sector numbers passed to Read and Write are relative to the start of the
// FAT volume found by Initialize. A Disk exclusively owns its card and is
// not safe for concurrent use.
type Disk struct {
	card      *card.Card
	locator   *volume.Locator
	status    Status
	reset     bool
	bpb       BPB
	partition uint8
}

// New creates a disk on bus b. The disk is uninitialized.
func New(b bus.Bus) *Disk {
	d := &Disk{card: card.New(b)}
	d.locator = volume.NewLocator(rawReader{d})
	return d
}

// Card returns the underlying card driver.
func (d *Disk) Card() *card.Card {
	return d.card
}

// Status returns the cached lifecycle state without touching the bus.
func (d *Disk) Status() Status {
	return d.status
}

// ResetPending returns true if an error has left the card in a state that
// requires re-initialization before the next transfer.
func (d *Disk) ResetPending() bool {
	return d.reset
}

// Ready returns true if transfers are accepted.
func (d *Disk) Ready() bool {
	return d.status == StatusReady && !d.reset
}

// CardType returns the negotiated card type.
func (d *Disk) CardType() card.Type {
	return d.card.Type()
}

// BPB returns the geometry of the located volume. It is the zero value
// until Initialize succeeds.
func (d *Disk) BPB() BPB {
	return d.bpb
}

// Partition returns the partition number requested by the last Initialize.
func (d *Disk) Partition() uint8 {
	return d.partition
}

// Initialize negotiates with the card and locates the FAT volume.
//
// Partition 0 selects the volume automatically; 1 to 4 force a partition
// table slot. Initialize does nothing if the disk is already ready with the
// same partition and no reset is pending.
func (d *Disk) Initialize(partition uint8) error {
	if d.Ready() && partition == d.partition {
		return nil
	}

	d.partition = partition
	d.status = StatusUninitialized
	d.bpb = BPB{}

	typ, err := d.card.Negotiate()
	if err != nil {
		d.status = StatusFault
		return d.fail("initialize", err)
	}

	bpb, err := d.locator.FindVolume(partition)
	if err != nil {
		d.status = StatusFault
		return d.fail("initialize", err)
	}

	d.bpb = bpb
	d.status = StatusReady
	d.reset = false
	pkg.LogInfo(pkg.ComponentDisk, "disk ready",
		"type", typ,
		"partition", partition,
		"start", bpb.PartitionStart,
		"sectors", bpb.TotalSectors)
	return nil
}

// Read reads count sectors starting at lbn into dst.
func (d *Disk) Read(lbn, count uint32, dst []byte) error {
	if err := d.check(count, len(dst)); err != nil {
		return d.fail("read", err)
	}
	if count == 0 {
		return nil
	}
	if err := d.readBlocks(uint64(lbn)+uint64(d.bpb.PartitionStart), count, dst); err != nil {
		return d.fail("read", err)
	}
	return nil
}

// Write writes count sectors from src starting at lbn.
func (d *Disk) Write(lbn, count uint32, src []byte) error {
	if err := d.check(count, len(src)); err != nil {
		return d.fail("write", err)
	}
	if count == 0 {
		return nil
	}
	if err := d.writeBlocks(uint64(lbn)+uint64(d.bpb.PartitionStart), count, src); err != nil {
		return d.fail("write", err)
	}
	return nil
}

// check validates a transfer before any bus traffic.
func (d *Disk) check(count uint32, size int) error {
	if !d.Ready() {
		return pkg.ErrNotReady
	}
	if uint64(size) < uint64(count)*SectorSize {
		return fmt.Errorf("%w: %d bytes for %d sectors", pkg.ErrBufferTooSmall, size, count)
	}
	return nil
}

// fail classifies err, records whether it requires a reset and wraps it in
// an *Error. Errors already classified keep their code.
func (d *Disk) fail(op string, err error) error {
	code := CodeOf(err)
	if code.needsReset() && d.status == StatusReady {
		d.reset = true
	}
	e := &Error{Op: op, Code: code, Err: err}
	if code == GeneralFailure {
		pkg.LogError(pkg.ComponentDisk, "unclassified failure", "op", op, "error", err)
	} else {
		pkg.LogDebug(pkg.ComponentDisk, "operation failed",
			"op", op, "code", code, "result", e.Result(), "error", err)
	}
	return e
}

// rawReader reads absolute sectors for the volume locator, which runs
// before the disk is ready.
type rawReader struct {
	d *Disk
}

// ReadSector implements volume.SectorReader.
func (r rawReader) ReadSector(sector uint32, buf []byte) error {
	return r.d.readBlocks(uint64(sector), 1, buf)
}
