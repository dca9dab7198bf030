// Package sim implements a simulated SD/MMC card that satisfies [bus.Bus].
//
// The simulator is intended for testing and for running the driver stack
// against disk images without hardware. It understands the SPI-mode command
// set the driver uses:
//
//   - Reset and negotiation (CMD0, CMD8, CMD55/ACMD41, CMD1, CMD58, CMD16)
//   - Register reads (CMD9 CSD, CMD10 CID, CMD13 status)
//   - Single and multi-block transfers (CMD17, CMD18, CMD12, CMD24, CMD25,
//     ACMD23)
//
// # Card Kinds
//
// [KindSDHC], [KindSDSC], [KindSDv1] and [KindMMC] answer the negotiation
// sequence the way the corresponding real cards do, so each branch of the
// driver's card detection can be exercised.
//
// # Media
//
// Card contents live in a [Media]. [MemoryMedia] keeps blocks in memory;
// [FileMedia] reads and writes a raw disk image file.
//
// # Fault Injection
//
// Setters on [Card] make it unresponsive, hold the line busy, stretch
// initialization, corrupt written data or fail reads of chosen blocks.
//
// # Usage
//
//	media := sim.NewMemoryMedia(8192)
//	sd := sim.New(sim.KindSDHC, media)
//	drv := card.New(sd) // any driver taking a bus.Bus
package sim
