package disk

import (
	"errors"
	"fmt"

	"github.com/ardnew/sdspi/card"
	"github.com/ardnew/sdspi/pkg"
)

// readBlocks reads count blocks starting at the absolute sector into buf.
// A single block uses CMD17; more use CMD18, which is always closed with
// CMD12 even if a block fails.
func (d *Disk) readBlocks(sector uint64, count uint32, buf []byte) error {
	defer d.card.Deselect()

	arg, err := d.card.Type().Address(sector)
	if err != nil {
		return fmt.Errorf("sector %d: %w", sector, err)
	}

	if count == 1 {
		if r := d.card.Command(card.CmdReadSingleBlock, arg); !r.IsOK() {
			return fmt.Errorf("%s sector %d: %s: %w", card.CmdReadSingleBlock, sector, r, r.Err())
		}
		if err := d.card.ReceiveBlock(buf[:SectorSize]); err != nil {
			return fmt.Errorf("sector %d: %w", sector, err)
		}
		return nil
	}

	if r := d.card.Command(card.CmdReadMultipleBlock, arg); !r.IsOK() {
		return fmt.Errorf("%s sector %d: %s: %w", card.CmdReadMultipleBlock, sector, r, r.Err())
	}
	for i := uint32(0); i < count; i++ {
		off := int(i) * SectorSize
		if err = d.card.ReceiveBlock(buf[off : off+SectorSize]); err != nil {
			err = fmt.Errorf("sector %d: %w", sector+uint64(i), err)
			break
		}
	}
	if r := d.card.Command(card.CmdStopTransmission, 0); !r.IsValid() {
		pkg.LogDebug(pkg.ComponentDisk, "stop transmission unanswered", "response", r)
	}
	return err
}

// writeBlocks writes count blocks from buf starting at the absolute sector.
// A single block uses CMD24; more use CMD25, announced to SD cards with
// ACMD23 and always closed with the stop token.
func (d *Disk) writeBlocks(sector uint64, count uint32, buf []byte) error {
	defer d.card.Deselect()

	typ := d.card.Type()
	arg, err := typ.Address(sector)
	if err != nil {
		return fmt.Errorf("sector %d: %w", sector, err)
	}

	if count == 1 {
		if r := d.card.Command(card.CmdWriteBlock, arg); !r.IsOK() {
			return fmt.Errorf("%s sector %d: %s: %w", card.CmdWriteBlock, sector, r, r.Err())
		}
		if err := d.card.SendBlock(buf[:SectorSize], card.TokenStartBlock); err != nil {
			return d.writeFault(sector, err)
		}
		return nil
	}

	if typ.IsSD() {
		// Pre-erase is a hint; cards that reject it still accept the write.
		d.card.Command(card.AcmdSetWrBlkEraseCount, count)
	}
	if r := d.card.Command(card.CmdWriteMultipleBlock, arg); !r.IsOK() {
		return fmt.Errorf("%s sector %d: %s: %w", card.CmdWriteMultipleBlock, sector, r, r.Err())
	}
	for i := uint32(0); i < count; i++ {
		off := int(i) * SectorSize
		if err = d.card.SendBlock(buf[off:off+SectorSize], card.TokenStartMulti); err != nil {
			err = fmt.Errorf("sector %d: %w", sector+uint64(i), err)
			break
		}
	}
	if stop := d.card.SendBlock(nil, card.TokenStopTran); stop != nil && err == nil {
		err = fmt.Errorf("stop token: %w", stop)
	}
	if err == nil {
		err = d.card.WaitReady()
	}
	if err != nil {
		return d.writeFault(sector, err)
	}
	return nil
}

// writeFault refines a rejected data block with the card status, which
// tells a write-protect violation apart from other failures.
func (d *Disk) writeFault(sector uint64, err error) error {
	if !errors.Is(err, pkg.ErrDataRejected) {
		return err
	}
	s, serr := d.card.ReadStatus()
	if serr != nil {
		return err
	}
	if s.IsWriteProtected() {
		return fmt.Errorf("sector %d: %w", sector, pkg.ErrWriteProtected)
	}
	return err
}
