package sim

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/ardnew/sdspi/bus"
)

// Kind selects the card generation a simulated card emulates.
type Kind uint8

// Card kinds.
const (
	KindSDHC Kind = iota // SD v2, block addressed (OCR CCS set)
	KindSDSC             // SD v2, byte addressed
	KindSDv1             // SD v1, rejects CMD8
	KindMMC              // MMC v3, rejects CMD8 and CMD55
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindSDHC:
		return "SDHC"
	case KindSDSC:
		return "SDSC"
	case KindSDv1:
		return "SDv1"
	case KindMMC:
		return "MMC"
	default:
		return "unknown"
	}
}

// ParseKind returns the kind named s, ignoring case.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{KindSDHC, KindSDSC, KindSDv1, KindMMC} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown card kind %q", s)
}

func (k Kind) sd() bool             { return k != KindMMC }
func (k Kind) v2() bool             { return k == KindSDHC || k == KindSDSC }
func (k Kind) blockAddressed() bool { return k == KindSDHC }

// R1 response bits.
const (
	r1Idle      = 0x01
	r1Illegal   = 0x04
	r1CRC       = 0x08
	r1Address   = 0x20
	r1Parameter = 0x40
)

// Data tokens and responses.
const (
	tokenStart = 0xFE
	tokenMulti = 0xFC
	tokenStop  = 0xFD

	errTokenError      = 0x01
	errTokenOutOfRange = 0x08

	respAccepted   = 0xE5
	respCRC        = 0xEB
	respWriteError = 0xED
)

// R2 second-byte WP violation bit.
const r2WPViolation = 0x20

// StuffByte is the byte a card clocks out immediately after CMD12, before
// its R1 response. It has bit 7 clear so a host that fails to discard it
// would mistake it for a response.
const StuffByte = 0x3F

// DefaultIdlePolls is the number of initialization polls (ACMD41 or CMD1)
// answered with the idle bit before a card reports ready.
const DefaultIdlePolls = 3

type mode uint8

const (
	modeCommand     mode = iota
	modeReadMulti        // streaming CMD18 data packets
	modeWriteSingle      // CMD24 waiting for the start token
	modeWriteMulti       // CMD25 waiting for a data or stop token
	modeWriteData        // collecting a data block
)

// Card is a simulated SD/MMC card in SPI mode. It implements [bus.Bus], so a
// driver talks to it exactly as it would to a real card behind a port.
//
// The card parses six-byte command frames from the transmit stream and queues
// its responses for subsequent reads. Bytes sent while no frame is in
// progress that do not look like a command start (0x40-0x7F) are ignored, as
// are all transfers while chip-select is inactive.
type Card struct {
	kind  Kind
	media Media

	selected bool
	idle     bool
	app      bool
	polls    int

	frame  [6]byte
	framed int

	out   []byte
	mode  mode
	multi bool
	block uint64
	rx    []byte

	wpViolation bool
	preErase    uint32

	idlePolls    int
	csd          *[16]byte
	unresponsive bool
	stuck        bool
	crcErrors    bool
	failRead     map[uint64]bool

	history []uint8
	elapsed uint64
	selects int

	mutex sync.Mutex
}

// New creates a simulated card of the given kind backed by media.
// The card starts in the power-on state and must be reset with CMD0.
func New(kind Kind, media Media) *Card {
	return &Card{
		kind:      kind,
		media:     media,
		idle:      true,
		idlePolls: DefaultIdlePolls,
		failRead:  make(map[uint64]bool),
	}
}

// Kind returns the emulated card generation.
func (c *Card) Kind() Kind {
	return c.kind
}

// Media returns the storage behind the card.
func (c *Card) Media() Media {
	return c.media
}

// SetIdlePolls sets how many initialization polls report idle before the
// card becomes ready. A negative value keeps the card idle forever.
func (c *Card) SetIdlePolls(n int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.idlePolls = n
}

// SetUnresponsive makes every read return the idle line level (0xFF), as if
// no card were inserted.
func (c *Card) SetUnresponsive(v bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.unresponsive = v
}

// SetStuck makes every read return 0x00, as if the card held the line busy.
func (c *Card) SetStuck(v bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stuck = v
}

// SetCRCErrors makes the card reject written data blocks with a CRC data
// response.
func (c *Card) SetCRCErrors(v bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.crcErrors = v
}

// FailRead makes reads of the given block return an error token.
func (c *Card) FailRead(block uint64, fail bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if fail {
		c.failRead[block] = true
	} else {
		delete(c.failRead, block)
	}
}

// SetCSD overrides the synthesized CSD register.
func (c *Card) SetCSD(csd [16]byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.csd = &csd
}

// Commands returns the command indices received since the last call to
// ClearCommands. Application commands have bit 7 set.
func (c *Card) Commands() []uint8 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]uint8, len(c.history))
	copy(out, c.history)
	return out
}

// ClearCommands discards the command history.
func (c *Card) ClearCommands() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.history = c.history[:0]
}

// Elapsed returns the total microseconds requested through Delay.
func (c *Card) Elapsed() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.elapsed
}

// Selected reports whether chip-select is currently active.
func (c *Card) Selected() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.selected
}

// Selects returns how many times chip-select has been asserted.
func (c *Card) Selects() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.selects
}

// PreErase returns the last block count announced with ACMD23.
func (c *Card) PreErase() uint32 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.preErase
}

// Select asserts chip-select.
func (c *Card) Select() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.selected = true
	c.selects++
}

// Deselect releases chip-select. Pending output, a partial command frame and
// any open data transfer are abandoned.
func (c *Card) Deselect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.selected = false
	c.out = c.out[:0]
	c.framed = 0
	c.mode = modeCommand
	c.rx = c.rx[:0]
}

// Transmit clocks data into the card.
func (c *Card) Transmit(data []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, b := range data {
		c.write(b)
	}
}

// Receive clocks len(buf) bytes out of the card.
func (c *Card) Receive(buf []byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i := range buf {
		buf[i] = c.read()
	}
}

// Send clocks a single byte into the card.
func (c *Card) Send(b byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.write(b)
}

// Recv clocks a single byte out of the card.
func (c *Card) Recv() byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.read()
}

// Delay records the requested delay without sleeping.
func (c *Card) Delay(us uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.elapsed += uint64(us)
}

func (c *Card) read() byte {
	if !c.selected || c.unresponsive {
		return bus.Idle
	}
	if c.stuck {
		return 0x00
	}
	if len(c.out) == 0 && c.mode == modeReadMulti {
		c.queueBlock(c.block)
		c.block++
	}
	if len(c.out) == 0 {
		return bus.Idle
	}
	b := c.out[0]
	c.out = c.out[1:]
	return b
}

func (c *Card) write(b byte) {
	if !c.selected {
		return
	}

	switch c.mode {
	case modeWriteSingle:
		if b == tokenStart {
			c.mode = modeWriteData
			c.multi = false
			c.rx = c.rx[:0]
		}
		return

	case modeWriteMulti:
		switch b {
		case tokenMulti:
			c.mode = modeWriteData
			c.multi = true
			c.rx = c.rx[:0]
		case tokenStop:
			c.mode = modeCommand
			c.out = append(c.out[:0], bus.Idle, 0x00, 0x00)
		}
		return

	case modeWriteData:
		c.rx = append(c.rx, b)
		if len(c.rx) == BlockSize+2 {
			c.commit()
		}
		return
	}

	if c.framed == 0 && b&0xC0 != 0x40 {
		return
	}
	c.frame[c.framed] = b
	c.framed++
	if c.framed == len(c.frame) {
		c.framed = 0
		c.execute()
	}
}

// commit stores a received data block and queues the data response
// followed by a short busy period.
func (c *Card) commit() {
	resp := byte(respAccepted)
	switch {
	case c.crcErrors:
		resp = respCRC
	case c.media.IsReadOnly():
		resp = respWriteError
		c.wpViolation = true
	default:
		if err := c.media.WriteBlock(c.block, c.rx[:BlockSize]); err != nil {
			resp = respWriteError
		}
	}
	c.out = append(c.out, resp, 0x00, 0x00)
	c.block++

	if c.multi {
		c.mode = modeWriteMulti
	} else {
		c.mode = modeCommand
	}
}

func (c *Card) queueBlock(block uint64) {
	if c.failRead[block] {
		c.out = append(c.out, bus.Idle, errTokenError)
		return
	}
	if block >= c.media.BlockCount() {
		c.out = append(c.out, bus.Idle, errTokenOutOfRange)
		return
	}
	var data [BlockSize]byte
	if err := c.media.ReadBlock(block, data[:]); err != nil {
		c.out = append(c.out, bus.Idle, errTokenError)
		return
	}
	c.out = append(c.out, bus.Idle, tokenStart)
	c.out = append(c.out, data[:]...)
	c.out = append(c.out, 0x00, 0x00)
}

func (c *Card) r1() byte {
	if c.idle {
		return r1Idle
	}
	return 0x00
}

// respond replaces pending output with one byte of command latency followed
// by the response bytes.
func (c *Card) respond(resp ...byte) {
	c.out = append(c.out[:0], bus.Idle)
	c.out = append(c.out, resp...)
}

func (c *Card) execute() {
	index := c.frame[0] & 0x3F
	arg := binary.BigEndian.Uint32(c.frame[1:5])
	crc := c.frame[5]

	app := c.app
	c.app = false

	if app {
		c.history = append(c.history, index|0x80)
	} else {
		c.history = append(c.history, index)
	}

	switch {
	case index == 0 && crc != 0x95,
		index == 8 && arg == 0x1AA && crc != 0x87:
		c.respond(c.r1() | r1CRC)
		return
	}

	if index == 12 {
		c.mode = modeCommand
		c.out = append(c.out[:0], StuffByte, bus.Idle, c.r1())
		return
	}
	if c.mode == modeReadMulti {
		// Anything but CMD12 is ignored while streaming.
		return
	}

	switch {
	case index == 0:
		c.idle = true
		c.polls = 0
		c.mode = modeCommand
		c.respond(r1Idle)

	case index == 8:
		if !c.kind.v2() {
			c.respond(c.r1() | r1Illegal)
			return
		}
		c.respond(c.r1(), 0x00, 0x00, byte(arg>>8)&0x0F, byte(arg))

	case index == 55:
		if !c.kind.sd() {
			c.respond(c.r1() | r1Illegal)
			return
		}
		c.app = true
		c.respond(c.r1())

	case index == 41 && app:
		c.powerUp()
		c.respond(c.r1())

	case index == 1:
		if c.kind.sd() {
			c.respond(c.r1() | r1Illegal)
			return
		}
		c.powerUp()
		c.respond(c.r1())

	case index == 58:
		var ocr byte
		if !c.idle {
			ocr = 0x80
			if c.kind.blockAddressed() {
				ocr |= 0x40
			}
		}
		c.respond(c.r1(), ocr, 0xFF, 0x80, 0x00)

	case c.idle:
		c.respond(r1Idle | r1Illegal)

	case index == 16:
		if arg != BlockSize && !c.kind.blockAddressed() {
			c.respond(r1Parameter)
			return
		}
		c.respond(0x00)

	case index == 9:
		csd := c.register()
		c.respondData(csd[:])

	case index == 10:
		cid := c.identity()
		c.respondData(cid[:])

	case index == 13:
		var status byte
		if c.wpViolation {
			status |= r2WPViolation
			c.wpViolation = false
		}
		c.respond(0x00, status)

	case index == 23 && app && c.kind.sd():
		c.preErase = arg & 0x7FFFFF
		c.respond(0x00)

	case index == 17, index == 18, index == 24, index == 25:
		block, r1 := c.address(arg)
		if r1 != 0 {
			c.respond(r1)
			return
		}
		c.block = block
		switch index {
		case 17:
			c.respond(0x00)
			c.queueBlock(block)
		case 18:
			c.respond(0x00)
			c.mode = modeReadMulti
		case 24:
			c.respond(0x00)
			c.mode = modeWriteSingle
		case 25:
			c.respond(0x00)
			c.mode = modeWriteMulti
		}

	default:
		c.respond(r1Illegal)
	}
}

// powerUp advances the initialization countdown.
func (c *Card) powerUp() {
	if !c.idle || c.idlePolls < 0 {
		return
	}
	c.polls++
	if c.polls > c.idlePolls {
		c.idle = false
	}
}

// address translates a command argument to a block number, returning a
// non-zero R1 on a misaligned or out-of-range address.
func (c *Card) address(arg uint32) (uint64, byte) {
	block := uint64(arg)
	if !c.kind.blockAddressed() {
		if arg%BlockSize != 0 {
			return 0, r1Address
		}
		block = uint64(arg) / BlockSize
	}
	if block >= c.media.BlockCount() {
		return 0, r1Parameter
	}
	return block, 0
}

func (c *Card) respondData(data []byte) {
	c.respond(0x00, bus.Idle, tokenStart)
	c.out = append(c.out, data...)
	c.out = append(c.out, 0x00, 0x00)
}

// register returns the CSD, synthesized from the media size unless
// overridden.
func (c *Card) register() [16]byte {
	if c.csd != nil {
		return *c.csd
	}
	return SynthesizeCSD(c.kind, c.media.BlockCount())
}

func (c *Card) identity() [16]byte {
	cid := [16]byte{0x03, 'S', 'D', 'S', 'I', 'M', '0', '1', 0x10}
	if c.kind == KindMMC {
		cid[1], cid[2] = 0x00, 0x01
	}
	binary.BigEndian.PutUint32(cid[9:13], 0x5D0C0FFE)
	cid[13], cid[14], cid[15] = 0x01, 0x8A, 0x01
	return cid
}

// SynthesizeCSD builds a CSD register describing blocks 512-byte sectors
// for the given card kind. SDHC cards use the version 2 layout, which
// counts capacity in 1024-sector units; the others use version 1 with a
// 512-byte READ_BL_LEN and the smallest C_SIZE_MULT that fits. Capacity is
// rounded down to what the layout can express.
func SynthesizeCSD(kind Kind, blocks uint64) [16]byte {
	var csd [16]byte
	csd[1] = 0x0E
	csd[3] = 0x32
	csd[4] = 0x5B
	csd[5] = 0x59
	csd[15] = 0x01

	if kind == KindSDHC {
		csd[0] = 0x40
		size := blocks >> 10
		if size == 0 {
			size = 1
		}
		size--
		csd[7] = byte(size>>16) & 0x3F
		csd[8] = byte(size >> 8)
		csd[9] = byte(size)
		return csd
	}

	if kind == KindMMC {
		csd[0] = 0x80
	}

	mult := uint64(0)
	for mult < 7 && blocks>>(mult+2) > 4096 {
		mult++
	}
	size := blocks >> (mult + 2)
	if size > 4096 {
		size = 4096
	}
	if size == 0 {
		size = 1
	}
	size--
	csd[6] = byte(size>>10) & 0x03
	csd[7] = byte(size >> 2)
	csd[8] = byte(size&0x03) << 6
	csd[9] = byte(mult>>1) & 0x03
	csd[10] = byte(mult&0x01) << 7
	return csd
}

// Compile-time interface check
var _ bus.Bus = (*Card)(nil)
