package bus

import (
	"encoding/hex"
	"log/slog"

	"github.com/ardnew/sdspi/pkg"
)

// Tracer is a Bus that logs every operation before forwarding it.
type Tracer struct {
	bus Bus
}

// Trace wraps b so that all traffic is logged at debug level.
func Trace(b Bus) *Tracer {
	return &Tracer{bus: b}
}

// Select logs and forwards chip-select assertion.
func (t *Tracer) Select() {
	pkg.LogDebug(pkg.ComponentBus, "select")
	t.bus.Select()
}

// Deselect logs and forwards chip-select release.
func (t *Tracer) Deselect() {
	pkg.LogDebug(pkg.ComponentBus, "deselect")
	t.bus.Deselect()
}

// Transmit logs and forwards a block write.
func (t *Tracer) Transmit(data []byte) {
	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentBus, "transmit", "len", len(data), "data", dump(data))
	}
	t.bus.Transmit(data)
}

// Receive forwards a block read and logs the bytes received.
func (t *Tracer) Receive(buf []byte) {
	t.bus.Receive(buf)
	if pkg.LogEnabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentBus, "receive", "len", len(buf), "data", dump(buf))
	}
}

// Send logs and forwards a single-byte write.
func (t *Tracer) Send(b byte) {
	pkg.LogDebug(pkg.ComponentBus, "send", "byte", b)
	t.bus.Send(b)
}

// Recv forwards a single-byte read and logs the byte received.
func (t *Tracer) Recv() byte {
	b := t.bus.Recv()
	pkg.LogDebug(pkg.ComponentBus, "recv", "byte", b)
	return b
}

// Delay forwards the delay without logging; polling loops call it too often.
func (t *Tracer) Delay(us uint32) {
	t.bus.Delay(us)
}

// dump renders at most the first 16 bytes of data as hex.
func dump(data []byte) string {
	const limit = 16
	if len(data) > limit {
		return hex.EncodeToString(data[:limit]) + "..."
	}
	return hex.EncodeToString(data)
}

// Compile-time interface check
var _ Bus = (*Tracer)(nil)
