package card

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ardnew/sdspi/bus/sim"
	"github.com/ardnew/sdspi/pkg"
)

// fastTiming shortens the long bounds so failure paths stay quick.
func fastTiming() Timing {
	t := DefaultTiming()
	t.InitPolls = 20
	t.ReadyPolls = 50
	t.TokenPolls = 50
	return t
}

func newCard(t *testing.T, kind sim.Kind, blocks uint64) (*Card, *sim.Card, *sim.MemoryMedia) {
	t.Helper()
	media := sim.NewMemoryMedia(blocks)
	sd := sim.New(kind, media)
	c := New(sd)
	if _, err := c.Negotiate(); err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	sd.ClearCommands()
	return c, sd, media
}

func pattern(seed byte) []byte {
	buf := make([]byte, BlockSize)
	for i := range buf {
		buf[i] = seed ^ byte(i*7)
	}
	return buf
}

// =============================================================================
// Command Framing
// =============================================================================

func TestCommand_String(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{CmdGoIdleState, "CMD0"},
		{CmdReadSingleBlock, "CMD17"},
		{AcmdSDSendOpCond, "ACMD41"},
		{AcmdSetWrBlkEraseCount, "ACMD23"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescriptor_MarshalTo(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		arg  uint32
		want []byte
	}{
		{"CMD0", CmdGoIdleState, 0, []byte{0x40, 0x00, 0x00, 0x00, 0x00, 0x95}},
		{"CMD8", CmdSendIfCond, 0x1AA, []byte{0x48, 0x00, 0x00, 0x01, 0xAA, 0x87}},
		{"CMD17", CmdReadSingleBlock, 0x12345678, []byte{0x51, 0x12, 0x34, 0x56, 0x78, 0x01}},
		{"ACMD41", AcmdSDSendOpCond, 1 << 30, []byte{0x69, 0x40, 0x00, 0x00, 0x00, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDescriptor(tt.cmd, tt.arg)
			buf := make([]byte, FrameSize)
			if n := d.MarshalTo(buf); n != FrameSize {
				t.Fatalf("MarshalTo() = %d, want %d", n, FrameSize)
			}
			if !bytes.Equal(buf, tt.want) {
				t.Errorf("frame = % X, want % X", buf, tt.want)
			}
		})
	}
}

func TestDescriptor_MarshalToShortBuffer(t *testing.T) {
	d := NewDescriptor(CmdGoIdleState, 0)
	if n := d.MarshalTo(make([]byte, 5)); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}
}

// =============================================================================
// Types
// =============================================================================

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeSDv2 | TypeBlockAddressed, "SDHC"},
		{TypeSDv2, "SDv2"},
		{TypeSDv1, "SDv1"},
		{TypeMMC, "MMC"},
		{0, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestType_Predicates(t *testing.T) {
	if !TypeMMC.IsMMC() || TypeMMC.IsSD() {
		t.Error("MMC predicates wrong")
	}
	if !TypeSDv1.IsSD() || TypeSDv1.IsBlockAddressed() {
		t.Error("SDv1 predicates wrong")
	}
	hc := TypeSDv2 | TypeBlockAddressed
	if !hc.IsSD() || !hc.IsBlockAddressed() {
		t.Error("SDHC predicates wrong")
	}
}

func TestType_Address(t *testing.T) {
	tests := []struct {
		name    string
		typ     Type
		sector  uint64
		want    uint32
		wantErr error
	}{
		{"block addressed", TypeSDv2 | TypeBlockAddressed, 1000, 1000, nil},
		{"byte addressed", TypeSDv2, 1000, 1000 * 512, nil},
		{"MMC", TypeMMC, 3, 1536, nil},
		{"last byte sector", TypeSDv1, 0x7FFFFF, 0xFFFFFE00, nil},
		{"byte overflow", TypeSDv1, 0x800000, 0, pkg.ErrAddress},
		{"block overflow", TypeSDv2 | TypeBlockAddressed, 1 << 32, 0, pkg.ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.typ.Address(tt.sector)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Address() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Address() = 0x%X, want 0x%X", got, tt.want)
			}
		})
	}
}

func TestResponse_Err(t *testing.T) {
	tests := []struct {
		name string
		r    Response
		want error
	}{
		{"ok", 0x00, nil},
		{"idle", R1Idle, pkg.ErrNotReady},
		{"no response", 0xFF, pkg.ErrNoResponse},
		{"illegal", R1Idle | R1IllegalCommand, pkg.ErrIllegalCommand},
		{"crc", R1CRCError, pkg.ErrCRC},
		{"address", R1AddressError, pkg.ErrAddress},
		{"parameter", R1ParameterError, pkg.ErrOutOfRange},
		{"erase", R1EraseSequence, pkg.ErrCommandRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.r.Err(); !errors.Is(err, tt.want) {
				t.Errorf("Err() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestResponse_String(t *testing.T) {
	if got := Response(0).String(); got != "ok" {
		t.Errorf("String() = %q, want ok", got)
	}
	if got := (R1Idle | R1IllegalCommand).String(); got != "idle|illegal command" {
		t.Errorf("String() = %q", got)
	}
}

func TestStatus_Err(t *testing.T) {
	tests := []struct {
		name string
		s    Status
		want error
	}{
		{"clear", 0x0000, nil},
		{"wp violation", R2WPViolation, pkg.ErrWriteProtected},
		{"out of range", R2OutOfRange, pkg.ErrOutOfRange},
		{"ecc", R2ECCFailed, pkg.ErrDataRejected},
		{"r1 first", Status(R1ParameterError)<<8 | R2WPViolation, pkg.ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Err(); !errors.Is(err, tt.want) {
				t.Errorf("Err() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTiming_Budgets(t *testing.T) {
	tm := DefaultTiming()
	if got := tm.ReadyTimeout().Milliseconds(); got != 500 {
		t.Errorf("ReadyTimeout() = %dms, want 500ms", got)
	}
	if got := tm.TokenTimeout().Milliseconds(); got != 100 {
		t.Errorf("TokenTimeout() = %dms, want 100ms", got)
	}
	if got := tm.InitTimeout().Milliseconds(); got != 1000 {
		t.Errorf("InitTimeout() = %dms, want 1000ms", got)
	}
}

// =============================================================================
// Negotiation
// =============================================================================

func TestNegotiate(t *testing.T) {
	tests := []struct {
		kind sim.Kind
		want Type
	}{
		{sim.KindSDHC, TypeSDv2 | TypeBlockAddressed},
		{sim.KindSDSC, TypeSDv2},
		{sim.KindSDv1, TypeSDv1},
		{sim.KindMMC, TypeMMC},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			sd := sim.New(tt.kind, sim.NewMemoryMedia(2048))
			c := New(sd)
			got, err := c.Negotiate()
			if err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Negotiate() = %v, want %v", got, tt.want)
			}
			if c.Type() != tt.want {
				t.Errorf("Type() = %v, want %v", c.Type(), tt.want)
			}
			if sd.Selected() {
				t.Error("card left selected after negotiation")
			}
		})
	}
}

func TestNegotiate_CommandSequence(t *testing.T) {
	tests := []struct {
		kind sim.Kind
		want []uint8
	}{
		{sim.KindSDHC, []uint8{0, 8, 55, 0xA9, 55, 0xA9, 55, 0xA9, 55, 0xA9, 58}},
		{sim.KindSDv1, []uint8{0, 8, 55, 0xA9, 55, 0xA9, 55, 0xA9, 55, 0xA9, 16}},
		{sim.KindMMC, []uint8{0, 8, 55, 1, 1, 1, 1, 16}},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			sd := sim.New(tt.kind, sim.NewMemoryMedia(2048))
			if _, err := New(sd).Negotiate(); err != nil {
				t.Fatalf("Negotiate() error = %v", err)
			}
			if got := sd.Commands(); !bytes.Equal(got, tt.want) {
				t.Errorf("commands = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNegotiate_Unresponsive(t *testing.T) {
	sd := sim.New(sim.KindSDHC, sim.NewMemoryMedia(2048))
	sd.SetUnresponsive(true)
	c := New(sd)

	_, err := c.Negotiate()
	if !errors.Is(err, pkg.ErrNotReady) {
		t.Fatalf("Negotiate() error = %v, want ErrNotReady", err)
	}
	if !errors.Is(err, pkg.ErrNotIdle) {
		t.Errorf("Negotiate() error = %v, want cause ErrNotIdle", err)
	}
	if c.Type() != 0 {
		t.Errorf("Type() = %v, want none", c.Type())
	}

	// Every attempt fails at CMD0 after the power-up delay alone.
	tm := c.Timing()
	if want := uint64(tm.Attempts) * uint64(tm.PowerUp); sd.Elapsed() != want {
		t.Errorf("Elapsed() = %dus, want %dus", sd.Elapsed(), want)
	}
}

func TestNegotiate_AlwaysBusy(t *testing.T) {
	sd := sim.New(sim.KindSDHC, sim.NewMemoryMedia(2048))
	sd.SetStuck(true)
	c := New(sd)
	c.SetTiming(fastTiming())

	_, err := c.Negotiate()
	if !errors.Is(err, pkg.ErrNotReady) {
		t.Fatalf("Negotiate() error = %v, want ErrNotReady", err)
	}

	tm := c.Timing()
	perAttempt := uint64(tm.PowerUp) + uint64(tm.ReadyPolls)*uint64(tm.ReadyDelay)
	if want := uint64(tm.Attempts) * perAttempt; sd.Elapsed() != want {
		t.Errorf("Elapsed() = %dus, want %dus", sd.Elapsed(), want)
	}
}

func TestNegotiate_NeverLeavesIdle(t *testing.T) {
	sd := sim.New(sim.KindSDHC, sim.NewMemoryMedia(2048))
	sd.SetIdlePolls(-1)
	c := New(sd)
	c.SetTiming(fastTiming())

	_, err := c.Negotiate()
	if !errors.Is(err, pkg.ErrNotReady) || !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("Negotiate() error = %v, want ErrNotReady wrapping ErrTimeout", err)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestCommand_AppPrefix(t *testing.T) {
	c, sd, _ := newCard(t, sim.KindSDHC, 2048)

	if r := c.Command(AcmdSetWrBlkEraseCount, 4); !r.IsOK() {
		t.Fatalf("ACMD23 = %v", r)
	}
	if got := sd.Commands(); !bytes.Equal(got, []uint8{55, 0x80 | 23}) {
		t.Errorf("commands = %v, want [55 151]", got)
	}
}

func TestCommand_AppPrefixRejected(t *testing.T) {
	c, sd, _ := newCard(t, sim.KindMMC, 2048)

	r := c.Command(AcmdSetWrBlkEraseCount, 4)
	if r&R1IllegalCommand == 0 {
		t.Errorf("ACMD23 on MMC = %v, want illegal command", r)
	}
	if got := sd.Commands(); !bytes.Equal(got, []uint8{55}) {
		t.Errorf("commands = %v, want only CMD55", got)
	}
}

func TestCommand_NoResponse(t *testing.T) {
	c, sd, _ := newCard(t, sim.KindSDHC, 2048)
	sd.SetUnresponsive(true)

	if r := c.Command(CmdSendStatus, 0); r.IsValid() {
		t.Errorf("Command() = 0x%02X, want bit 7 set", uint8(r))
	}
}

func TestCommand_StopDiscardsStuffByte(t *testing.T) {
	c, _, media := newCard(t, sim.KindSDHC, 2048)
	media.WriteBlock(5, pattern(1))
	media.WriteBlock(6, pattern(2))

	if r := c.Command(CmdReadMultipleBlock, 5); !r.IsOK() {
		t.Fatalf("CMD18 = %v", r)
	}
	buf := make([]byte, BlockSize)
	for i := byte(1); i <= 2; i++ {
		if err := c.ReceiveBlock(buf); err != nil {
			t.Fatalf("ReceiveBlock() error = %v", err)
		}
		if !bytes.Equal(buf, pattern(i)) {
			t.Errorf("block %d mismatch", i)
		}
	}
	if r := c.Command(CmdStopTransmission, 0); !r.IsOK() {
		t.Errorf("CMD12 = 0x%02X, want 0x00", uint8(r))
	}
	c.Deselect()
}

// =============================================================================
// Block Framing
// =============================================================================

func TestReceiveBlock(t *testing.T) {
	c, _, media := newCard(t, sim.KindSDSC, 2048)
	media.WriteBlock(9, pattern(0x33))

	arg, err := c.Type().Address(9)
	if err != nil {
		t.Fatal(err)
	}
	if r := c.Command(CmdReadSingleBlock, arg); !r.IsOK() {
		t.Fatalf("CMD17 = %v", r)
	}
	buf := make([]byte, BlockSize)
	if err := c.ReceiveBlock(buf); err != nil {
		t.Fatalf("ReceiveBlock() error = %v", err)
	}
	if !bytes.Equal(buf, pattern(0x33)) {
		t.Error("received data mismatch")
	}
	c.Deselect()
}

func TestReceiveBlock_Errors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		c, sd, _ := newCard(t, sim.KindSDHC, 2048)
		c.SetTiming(fastTiming())
		if err := c.Select(); err != nil {
			t.Fatal(err)
		}
		before := sd.Elapsed()
		err := c.ReceiveBlock(make([]byte, BlockSize))
		if !errors.Is(err, pkg.ErrTokenTimeout) {
			t.Errorf("ReceiveBlock() error = %v, want ErrTokenTimeout", err)
		}
		tm := c.Timing()
		if got := sd.Elapsed() - before; got != uint64(tm.TokenPolls)*uint64(tm.TokenDelay) {
			t.Errorf("waited %dus", got)
		}
	})

	t.Run("error token", func(t *testing.T) {
		c, sd, _ := newCard(t, sim.KindSDHC, 2048)
		sd.FailRead(3, true)
		c.Command(CmdReadSingleBlock, 3)
		if err := c.ReceiveBlock(make([]byte, BlockSize)); !errors.Is(err, pkg.ErrBadToken) {
			t.Errorf("ReceiveBlock() error = %v, want ErrBadToken", err)
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		c, sd, _ := newCard(t, sim.KindSDHC, 2048)
		selects := sd.Selects()
		if err := c.ReceiveBlock(make([]byte, 100)); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("ReceiveBlock() error = %v, want ErrInvalidParameter", err)
		}
		if sd.Selects() != selects || len(sd.Commands()) != 0 {
			t.Error("invalid length caused bus traffic")
		}
	})
}

func TestSendBlock(t *testing.T) {
	c, _, media := newCard(t, sim.KindSDHC, 2048)

	if r := c.Command(CmdWriteBlock, 12); !r.IsOK() {
		t.Fatalf("CMD24 = %v", r)
	}
	if err := c.SendBlock(pattern(0x5A), TokenStartBlock); err != nil {
		t.Fatalf("SendBlock() error = %v", err)
	}
	if err := c.WaitReady(); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	c.Deselect()

	got := make([]byte, BlockSize)
	media.ReadBlock(12, got)
	if !bytes.Equal(got, pattern(0x5A)) {
		t.Error("written data mismatch")
	}
}

func TestSendBlock_Multi(t *testing.T) {
	c, _, media := newCard(t, sim.KindSDHC, 2048)

	if r := c.Command(CmdWriteMultipleBlock, 40); !r.IsOK() {
		t.Fatalf("CMD25 = %v", r)
	}
	for i := byte(0); i < 3; i++ {
		if err := c.SendBlock(pattern(i), TokenStartMulti); err != nil {
			t.Fatalf("SendBlock(%d) error = %v", i, err)
		}
	}
	if err := c.SendBlock(nil, TokenStopTran); err != nil {
		t.Fatalf("stop token error = %v", err)
	}
	if err := c.WaitReady(); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	c.Deselect()

	got := make([]byte, BlockSize)
	for i := byte(0); i < 3; i++ {
		media.ReadBlock(40+uint64(i), got)
		if !bytes.Equal(got, pattern(i)) {
			t.Errorf("block %d mismatch", 40+int(i))
		}
	}
}

func TestSendBlock_Rejected(t *testing.T) {
	t.Run("crc", func(t *testing.T) {
		c, sd, _ := newCard(t, sim.KindSDHC, 2048)
		sd.SetCRCErrors(true)
		c.Command(CmdWriteBlock, 0)
		if err := c.SendBlock(pattern(0), TokenStartBlock); !errors.Is(err, pkg.ErrCRC) {
			t.Errorf("SendBlock() error = %v, want ErrCRC", err)
		}
	})

	t.Run("write protect", func(t *testing.T) {
		c, _, media := newCard(t, sim.KindSDHC, 2048)
		media.SetReadOnly(true)
		c.Command(CmdWriteBlock, 0)
		if err := c.SendBlock(pattern(0), TokenStartBlock); !errors.Is(err, pkg.ErrDataRejected) {
			t.Fatalf("SendBlock() error = %v, want ErrDataRejected", err)
		}
		s, err := c.ReadStatus()
		if err != nil {
			t.Fatalf("ReadStatus() error = %v", err)
		}
		if !s.IsWriteProtected() {
			t.Errorf("ReadStatus() = 0x%04X, want WP violation", uint16(s))
		}
		if !errors.Is(s.Err(), pkg.ErrWriteProtected) {
			t.Errorf("Status.Err() = %v", s.Err())
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		c, _, _ := newCard(t, sim.KindSDHC, 2048)
		if err := c.SendBlock(make([]byte, 513), TokenStartBlock); !errors.Is(err, pkg.ErrInvalidParameter) {
			t.Errorf("SendBlock() error = %v, want ErrInvalidParameter", err)
		}
	})

	t.Run("busy", func(t *testing.T) {
		c, sd, _ := newCard(t, sim.KindSDHC, 2048)
		c.SetTiming(fastTiming())
		c.Select()
		sd.SetStuck(true)
		if err := c.SendBlock(pattern(0), TokenStartBlock); !errors.Is(err, pkg.ErrTimeout) {
			t.Errorf("SendBlock() error = %v, want ErrTimeout", err)
		}
	})
}

// =============================================================================
// Registers
// =============================================================================

func TestCSD_SectorCount(t *testing.T) {
	var v1 CSD
	v1[5] = 0x59 // READ_BL_LEN 9
	v1[6] = 0x03 // C_SIZE 3839 = 0b1110_1111_1111
	v1[7] = 0xBF
	v1[8] = 0xC0
	v1[9] = 0x03 // C_SIZE_MULT 7
	v1[10] = 0x80

	var v2 CSD
	v2[0] = 0x40 // CSD_STRUCTURE 1
	v2[7] = 0x00 // C_SIZE 15159
	v2[8] = 0x3B
	v2[9] = 0x37

	tests := []struct {
		name    string
		csd     CSD
		version int
		want    uint64
	}{
		{"version 1", v1, 1, 1966080},
		{"version 2", v2, 2, 15523840},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.csd.Version(); got != tt.version {
				t.Errorf("Version() = %d, want %d", got, tt.version)
			}
			if got := tt.csd.SectorCount(); got != tt.want {
				t.Errorf("SectorCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReadCSD(t *testing.T) {
	tests := []struct {
		kind    sim.Kind
		blocks  uint64
		version int
	}{
		{sim.KindSDHC, 16384, 2},
		{sim.KindSDSC, 4096, 1},
		{sim.KindMMC, 8192, 1},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			c, _, _ := newCard(t, tt.kind, tt.blocks)
			csd, err := c.ReadCSD()
			if err != nil {
				t.Fatalf("ReadCSD() error = %v", err)
			}
			c.Deselect()
			if csd.Version() != tt.version {
				t.Errorf("Version() = %d, want %d", csd.Version(), tt.version)
			}
			if csd.SectorCount() != tt.blocks {
				t.Errorf("SectorCount() = %d, want %d", csd.SectorCount(), tt.blocks)
			}
		})
	}
}

func TestReadCID(t *testing.T) {
	c, _, _ := newCard(t, sim.KindSDHC, 2048)
	cid, err := c.ReadCID()
	if err != nil {
		t.Fatalf("ReadCID() error = %v", err)
	}
	c.Deselect()

	if cid.ApplicationID() != "SD" {
		t.Errorf("ApplicationID() = %q", cid.ApplicationID())
	}
	if cid.ProductName() != "SIM01" {
		t.Errorf("ProductName() = %q", cid.ProductName())
	}
	if major, minor := cid.Revision(); major != 1 || minor != 0 {
		t.Errorf("Revision() = %d.%d, want 1.0", major, minor)
	}
	if cid.String() == "" {
		t.Error("String() is empty")
	}
}

func TestReadCSD_NotReady(t *testing.T) {
	sd := sim.New(sim.KindSDHC, sim.NewMemoryMedia(2048))
	c := New(sd)
	c.Select()
	sd.Transmit([]byte{0x40, 0, 0, 0, 0, 0x95}) // reset without negotiating
	c.Deselect()

	if _, err := c.ReadCSD(); err == nil {
		t.Error("ReadCSD() on idle card succeeded")
	}
}
