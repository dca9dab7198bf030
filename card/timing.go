package card

import "time"

// Timing bounds every polling loop in the driver. Each bound is a count of
// polls with a fixed delay between them rather than a wall-clock deadline, so
// a loop ends after Polls x Delay of bus delay time at most.
type Timing struct {
	// Attempts is the number of complete negotiation sequences tried
	// before a card is declared not ready.
	Attempts int

	// PowerUp is the delay in microseconds before each negotiation
	// attempt (10 ms).
	PowerUp uint32

	// DummyBytes is the number of 0xFF bytes clocked with chip-select
	// inactive before reset (10 bytes, 80 clocks).
	DummyBytes int

	// ResponsePolls is the number of reads waiting for an R1 byte with
	// bit 7 clear. There is no delay between them.
	ResponsePolls int

	// InitPolls and InitDelay bound the wait for a card to leave the idle
	// state after ACMD41 or CMD1 (1000 x 1 ms = 1 s).
	InitPolls int
	InitDelay uint32

	// ReadyPolls and ReadyDelay bound the wait for the card to release
	// the data line (5000 x 100 us = 500 ms).
	ReadyPolls int
	ReadyDelay uint32

	// TokenPolls and TokenDelay bound the wait for a data start token
	// (1000 x 100 us = 100 ms).
	TokenPolls int
	TokenDelay uint32
}

// DefaultTiming returns the bounds used by a new Card.
func DefaultTiming() Timing {
	return Timing{
		Attempts:      5,
		PowerUp:       10000,
		DummyBytes:    10,
		ResponsePolls: 10,
		InitPolls:     1000,
		InitDelay:     1000,
		ReadyPolls:    5000,
		ReadyDelay:    100,
		TokenPolls:    1000,
		TokenDelay:    100,
	}
}

// ReadyTimeout returns the wall-clock budget of a ready wait.
func (t Timing) ReadyTimeout() time.Duration {
	return time.Duration(t.ReadyPolls) * time.Duration(t.ReadyDelay) * time.Microsecond
}

// TokenTimeout returns the wall-clock budget of a data token wait.
func (t Timing) TokenTimeout() time.Duration {
	return time.Duration(t.TokenPolls) * time.Duration(t.TokenDelay) * time.Microsecond
}

// InitTimeout returns the wall-clock budget of the wait for a card to leave
// the idle state.
func (t Timing) InitTimeout() time.Duration {
	return time.Duration(t.InitPolls) * time.Duration(t.InitDelay) * time.Microsecond
}
