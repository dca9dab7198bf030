// Package bus defines the transport capability between the card driver and
// an SD/MMC card in SPI mode.
//
// The driver never touches pins or I/O ports itself. Everything it needs is
// expressed through the [Bus] interface:
//
//   - Chip-select control ([Bus.Select], [Bus.Deselect])
//   - Block transfers ([Bus.Transmit], [Bus.Receive])
//   - Single-byte status polling ([Bus.Send], [Bus.Recv])
//   - A microsecond delay used to pace polling loops ([Bus.Delay])
//
// # Implementing a Bus
//
// A bit-banged parallel-port adapter, a hardware SPI peripheral and a
// simulated card all satisfy the same contract. The simulated card in
// [github.com/ardnew/sdspi/bus/sim] is used for testing.
//
// # Tracing
//
// [Trace] wraps any Bus and logs chip-select changes and every transfer at
// debug level:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	b := bus.Trace(port)
package bus
