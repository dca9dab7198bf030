package card

import (
	"fmt"

	"github.com/ardnew/sdspi/bus"
	"github.com/ardnew/sdspi/pkg"
)

// Interface condition argument for CMD8: 2.7-3.6 V supply with check
// pattern 0xAA.
const ifCondArg = 0x1AA

// Host capacity support bit in the ACMD41 argument.
const hcsBit = 1 << 30

// Card capacity status bit in OCR byte 0.
const ocrCCS = 0x40

// Negotiate resets the card and determines its type.
//
// The detect sequence forks three ways: SD version 2 cards answer CMD8 and
// are initialized with ACMD41 announcing high-capacity support, after which
// the OCR tells block addressing apart from byte addressing. Cards that
// reject CMD8 are SD version 1 if they accept ACMD41 and MMC otherwise,
// which is initialized with CMD1. Both legacy types are switched to a
// 512-byte block length.
//
// The whole sequence is repeated up to Timing.Attempts times. If no attempt
// succeeds the returned error wraps pkg.ErrNotReady and the cause of the
// last failure. The card is always deselected on return.
func (c *Card) Negotiate() (Type, error) {
	defer c.Deselect()

	c.typ = 0
	var err error
	for attempt := 1; attempt <= c.timing.Attempts; attempt++ {
		var t Type
		if t, err = c.negotiate(); err == nil {
			c.typ = t
			pkg.LogInfo(pkg.ComponentCard, "card ready", "type", t, "attempt", attempt)
			return t, nil
		}
		pkg.LogDebug(pkg.ComponentCard, "negotiation attempt failed",
			"attempt", attempt, "error", err)
	}

	pkg.LogWarn(pkg.ComponentCard, "card not ready", "attempts", c.timing.Attempts, "error", err)
	if err == nil {
		return 0, pkg.ErrNotReady
	}
	return 0, fmt.Errorf("%w: %w", pkg.ErrNotReady, err)
}

// negotiate runs one detect sequence.
func (c *Card) negotiate() (Type, error) {
	c.bus.Deselect()
	c.bus.Delay(c.timing.PowerUp)
	for i := 0; i < c.timing.DummyBytes; i++ {
		c.bus.Send(bus.Idle)
	}

	if r := c.Command(CmdGoIdleState, 0); !r.IsIdle() {
		return 0, fmt.Errorf("%s returned %s: %w", CmdGoIdleState, r, pkg.ErrNotIdle)
	}

	if c.Command(CmdSendIfCond, ifCondArg).IsIdle() {
		return c.negotiateV2()
	}
	return c.negotiateLegacy()
}

// negotiateV2 initializes a card that answered CMD8.
func (c *Card) negotiateV2() (Type, error) {
	var r7 [4]byte
	c.bus.Receive(r7[:])
	if r7[2] != ifCondArg>>8 || r7[3] != ifCondArg&0xFF {
		return 0, fmt.Errorf("%s echoed %02X%02X: %w",
			CmdSendIfCond, r7[2], r7[3], pkg.ErrNotSupported)
	}

	if err := c.leaveIdle(AcmdSDSendOpCond, hcsBit); err != nil {
		return 0, err
	}

	if r := c.Command(CmdReadOCR, 0); !r.IsOK() {
		return 0, fmt.Errorf("%s returned %s: %w", CmdReadOCR, r, pkg.ErrCommandRejected)
	}
	var ocr [4]byte
	c.bus.Receive(ocr[:])

	t := TypeSDv2
	if ocr[0]&ocrCCS != 0 {
		t |= TypeBlockAddressed
	}
	return t, nil
}

// negotiateLegacy initializes an SD version 1 card or an MMC.
func (c *Card) negotiateLegacy() (Type, error) {
	t, cmd := TypeSDv1, AcmdSDSendOpCond
	if c.Command(AcmdSDSendOpCond, 0) > R1Idle {
		t, cmd = TypeMMC, CmdSendOpCond
	}

	if err := c.leaveIdle(cmd, 0); err != nil {
		return 0, err
	}

	if r := c.Command(CmdSetBlockLen, BlockSize); !r.IsOK() {
		return 0, fmt.Errorf("%s returned %s: %w", CmdSetBlockLen, r, pkg.ErrCommandRejected)
	}
	return t, nil
}

// leaveIdle repeats cmd until the card reports it has left the idle state.
func (c *Card) leaveIdle(cmd Command, arg uint32) error {
	for i := 0; i < c.timing.InitPolls; i++ {
		if c.Command(cmd, arg).IsOK() {
			return nil
		}
		c.bus.Delay(c.timing.InitDelay)
	}
	return fmt.Errorf("%s: card stayed idle: %w", cmd, pkg.ErrTimeout)
}
