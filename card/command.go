package card

import (
	"github.com/ardnew/sdspi/bus"
	"github.com/ardnew/sdspi/pkg"
)

// Card drives an SD or MMC card in SPI mode over a Bus.
//
// A Card exclusively owns its bus and is not safe for concurrent use.
// Methods other than Negotiate leave chip-select asserted; the caller
// releases the card with Deselect once a whole operation is complete.
type Card struct {
	bus    bus.Bus
	typ    Type
	timing Timing
	frame  [FrameSize]byte
}

// New creates a card driver on b with default timing.
func New(b bus.Bus) *Card {
	return &Card{
		bus:    b,
		timing: DefaultTiming(),
	}
}

// Type returns the type found by the last successful Negotiate, or zero.
func (c *Card) Type() Type {
	return c.typ
}

// Timing returns the current polling bounds.
func (c *Card) Timing() Timing {
	return c.timing
}

// SetTiming replaces the polling bounds.
func (c *Card) SetTiming(t Timing) {
	c.timing = t
}

// WaitReady polls until the card releases the data line (reads 0xFF).
// Returns pkg.ErrTimeout if the card stays busy.
func (c *Card) WaitReady() error {
	for i := 0; i < c.timing.ReadyPolls; i++ {
		if c.bus.Recv() == bus.Idle {
			return nil
		}
		c.bus.Delay(c.timing.ReadyDelay)
	}
	return pkg.ErrTimeout
}

// Select asserts chip-select and waits for the card to become ready.
// On timeout the card is deselected again.
func (c *Card) Select() error {
	c.bus.Select()
	if err := c.WaitReady(); err != nil {
		c.bus.Deselect()
		return err
	}
	return nil
}

// Deselect releases chip-select.
func (c *Card) Deselect() {
	c.bus.Deselect()
}

// Command sends cmd with arg and returns the R1 response.
//
// An application command is preceded by CMD55, and its response is
// returned as-is if it is anything but ok or idle. Every command except
// CMD12 reselects the card first; CMD12 is sent while a multi-block read is
// still streaming, so chip-select is left alone and one stuff byte is
// discarded after the frame. A card that fails to become ready yields
// 0xFF. Otherwise the response is polled up to Timing.ResponsePolls times
// and the last byte read is returned, with bit 7 set if none was valid.
func (c *Card) Command(cmd Command, arg uint32) Response {
	if cmd.IsApp() {
		if r := c.Command(CmdAppCmd, 0); r > R1Idle {
			return r
		}
	}

	if cmd != CmdStopTransmission {
		c.bus.Deselect()
		if err := c.Select(); err != nil {
			pkg.LogDebug(pkg.ComponentCard, "select failed", "cmd", cmd, "error", err)
			return Response(bus.Idle)
		}
	}

	d := NewDescriptor(cmd, arg)
	n := d.MarshalTo(c.frame[:])
	c.bus.Transmit(c.frame[:n])

	if cmd == CmdStopTransmission {
		c.bus.Recv()
	}

	r := Response(bus.Idle)
	for i := 0; i < c.timing.ResponsePolls; i++ {
		r = Response(c.bus.Recv())
		if r.IsValid() {
			break
		}
	}

	pkg.LogDebug(pkg.ComponentCard, "command",
		"cmd", cmd, "arg", arg, "frame", c.frame[:n], "response", r)
	return r
}
