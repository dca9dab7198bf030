// Package card implements the SD/MMC command protocol in SPI mode.
//
// A [Card] wraps a [bus.Bus] and provides:
//
//   - Command framing with the CMD55 prefix for application commands
//     ([Card.Command])
//   - Card detection and initialization for SD version 2 (standard and
//     high capacity), SD version 1 and MMC ([Card.Negotiate])
//   - Token-delimited 512-byte data packets ([Card.ReceiveBlock],
//     [Card.SendBlock])
//   - Register access: CSD, CID and R2 status ([Card.ReadCSD],
//     [Card.ReadCID], [Card.ReadStatus])
//
// # Bounded Polling
//
// The driver never waits on a clock. Every loop is a poll count paired with
// a bus delay, described by [Timing]; the defaults approximate the
// millisecond budgets of the SD specification.
//
// # Addressing
//
// High-capacity cards take block indices as data command arguments; older
// cards take byte offsets. [Type.Address] performs the translation.
//
// # Usage
//
//	c := card.New(b)
//	typ, err := c.Negotiate()
//	if err != nil {
//	    return err
//	}
//	arg, _ := typ.Address(sector)
//	if r := c.Command(card.CmdReadSingleBlock, arg); r.IsOK() {
//	    err = c.ReceiveBlock(buf)
//	}
//	c.Deselect()
package card
