package card

import "fmt"

// BlockSize is the fixed data block size in bytes. Every card is driven with
// a 512-byte block length regardless of its native capacity class.
const BlockSize = 512

// EraseBlockSize is the erase granularity reported to the host, in sectors.
const EraseBlockSize = 128

// Data tokens framing a block transfer.
const (
	TokenStartBlock = 0xFE // Start of a single-block read/write or any read packet
	TokenStartMulti = 0xFC // Start of each block in a multi-block write
	TokenStopTran   = 0xFD // End of a multi-block write; carries no payload
)

// Data response values, masked with DataResponseMask.
const (
	DataResponseMask = 0x1F
	DataAccepted     = 0x05 // Data accepted
	DataCRCError     = 0x0B // Data rejected due to a CRC error
	DataWriteError   = 0x0D // Data rejected due to a write error
)

// Fixed CRC bytes for the commands that are checked even in SPI mode.
const (
	crcGoIdle   = 0x95 // CMD0 with argument 0
	crcIfCond   = 0x87 // CMD8 with argument 0x1AA
	crcDisabled = 0x01 // Placeholder CRC with the end bit set
)

// Command is a card command index. Application-specific commands carry
// AppFlag and are sent as CMD55 followed by the command itself.
type Command uint8

// AppFlag marks an application-specific command (ACMD).
const AppFlag Command = 0x80

// Commands used by the driver (SD Physical Layer, SPI mode).
const (
	CmdGoIdleState        Command = 0  // CMD0: software reset
	CmdSendOpCond         Command = 1  // CMD1: initiate initialization (MMC)
	CmdSendIfCond         Command = 8  // CMD8: check voltage range (SDv2)
	CmdSendCSD            Command = 9  // CMD9: read CSD register
	CmdSendCID            Command = 10 // CMD10: read CID register
	CmdStopTransmission   Command = 12 // CMD12: stop a multi-block read
	CmdSendStatus         Command = 13 // CMD13: read card status (R2)
	CmdSetBlockLen        Command = 16 // CMD16: set block length
	CmdReadSingleBlock    Command = 17 // CMD17: read one block
	CmdReadMultipleBlock  Command = 18 // CMD18: read blocks until CMD12
	CmdWriteBlock         Command = 24 // CMD24: write one block
	CmdWriteMultipleBlock Command = 25 // CMD25: write blocks until stop token
	CmdAppCmd             Command = 55 // CMD55: next command is an ACMD
	CmdReadOCR            Command = 58 // CMD58: read OCR register

	AcmdSetWrBlkEraseCount = AppFlag | 23 // ACMD23: pre-erase block count (SD)
	AcmdSDSendOpCond       = AppFlag | 41 // ACMD41: initiate initialization (SD)
)

// Index returns the 6-bit command index.
func (c Command) Index() uint8 {
	return uint8(c) & 0x3F
}

// IsApp returns true for application-specific commands.
func (c Command) IsApp() bool {
	return c&AppFlag != 0
}

// String returns the conventional command name, e.g. "CMD17" or "ACMD41".
func (c Command) String() string {
	if c.IsApp() {
		return fmt.Sprintf("ACMD%d", c.Index())
	}
	return fmt.Sprintf("CMD%d", c.Index())
}
