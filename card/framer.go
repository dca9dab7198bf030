package card

import (
	"fmt"

	"github.com/ardnew/sdspi/bus"
	"github.com/ardnew/sdspi/pkg"
)

// crcPlaceholder is clocked out in place of the data CRC, which the card
// does not check in SPI mode.
var crcPlaceholder = [2]byte{bus.Idle, bus.Idle}

// ReceiveBlock reads one 512-byte data packet into buf.
//
// It waits for the start token; a timeout returns pkg.ErrTokenTimeout and
// any other byte (such as an error token) returns pkg.ErrBadToken. The two
// trailing CRC bytes are discarded.
func (c *Card) ReceiveBlock(buf []byte) error {
	if len(buf) != BlockSize {
		return pkg.ErrInvalidParameter
	}
	return c.receive(buf)
}

// receive reads a data packet of len(buf) bytes. Register reads use it
// with 16-byte packets.
func (c *Card) receive(buf []byte) error {
	token := byte(bus.Idle)
	for i := 0; i < c.timing.TokenPolls; i++ {
		if token = c.bus.Recv(); token != bus.Idle {
			break
		}
		c.bus.Delay(c.timing.TokenDelay)
	}

	switch token {
	case TokenStartBlock:
	case bus.Idle:
		pkg.LogDebug(pkg.ComponentFramer, "data token timeout")
		return pkg.ErrTokenTimeout
	default:
		pkg.LogDebug(pkg.ComponentFramer, "unexpected data token", "token", token)
		return fmt.Errorf("%w: 0x%02X", pkg.ErrBadToken, token)
	}

	c.bus.Receive(buf)
	var crc [2]byte
	c.bus.Receive(crc[:])
	return nil
}

// SendBlock writes one data packet introduced by token.
//
// The card must first become ready. For TokenStartBlock and TokenStartMulti
// the 512 bytes of buf follow with a placeholder CRC, and the card's data
// response must report acceptance: a CRC rejection returns pkg.ErrCRC and
// any other rejection pkg.ErrDataRejected. TokenStopTran is sent alone,
// buf is ignored and the stuff byte that precedes the card's busy period is
// discarded.
func (c *Card) SendBlock(buf []byte, token byte) error {
	if token != TokenStopTran && len(buf) != BlockSize {
		return pkg.ErrInvalidParameter
	}

	if err := c.WaitReady(); err != nil {
		pkg.LogDebug(pkg.ComponentFramer, "card busy before token", "token", token)
		return err
	}

	c.bus.Send(token)
	if token == TokenStopTran {
		c.bus.Recv()
		return nil
	}

	c.bus.Transmit(buf)
	c.bus.Transmit(crcPlaceholder[:])

	resp := c.bus.Recv()
	switch resp & DataResponseMask {
	case DataAccepted:
		return nil
	case DataCRCError:
		pkg.LogDebug(pkg.ComponentFramer, "data rejected", "response", resp)
		return fmt.Errorf("data response 0x%02X: %w", resp, pkg.ErrCRC)
	default:
		pkg.LogDebug(pkg.ComponentFramer, "data rejected", "response", resp)
		return fmt.Errorf("data response 0x%02X: %w", resp, pkg.ErrDataRejected)
	}
}
