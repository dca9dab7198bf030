package bus

// Idle is the value of a released data line. Reads from a card that is not
// driving the line return Idle.
const Idle = 0xFF

// Bus defines the byte-level capability a card driver needs from its
// physical transport.
//
// Writes clock a byte out to the card; reads clock a byte in (the transport
// shifts out Idle while reading). Implementations do not report errors: a
// missing or stuck card shows up as Idle or garbage bytes, which the
// protocol layer bounds with retry counters.
//
// A Bus is owned by exactly one driver and is not safe for concurrent use.
type Bus interface {
	// Select drives chip-select active (low).
	Select()

	// Deselect drives chip-select inactive (high), releasing the card.
	Deselect()

	// Transmit clocks every byte of data out to the card.
	Transmit(data []byte)

	// Receive clocks len(buf) bytes in from the card.
	Receive(buf []byte)

	// Send clocks a single byte out to the card.
	Send(b byte)

	// Recv clocks a single byte in from the card.
	Recv() byte

	// Delay busy-waits for at least us microseconds.
	Delay(us uint32)
}
