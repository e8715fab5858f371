// Package afpacket implements a TPACKET_V3 capture source.
package afpacket

import (
	"math/bits"
	"time"
)

const (
	defaultSnapLen     = 128
	defaultBlockSize   = 1 << 20
	defaultNumBlocks   = 64
	defaultFanoutID    = 42
	defaultPollTimeout = 100 * time.Millisecond
)

// Config describes one TPACKET_V3 handle.
type Config struct {
	Interface   string
	SnapLen     int
	BlockSize   int
	NumBlocks   int
	FanoutID    uint16
	Fanout      bool // join the fanout group; set when more than one lane reads the interface
	BPFFilter   string
	PollTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.SnapLen <= 0 {
		c.SnapLen = defaultSnapLen
	}
	if c.BlockSize <= 0 {
		c.BlockSize = defaultBlockSize
	}
	if c.NumBlocks <= 0 {
		c.NumBlocks = defaultNumBlocks
	}
	if c.FanoutID == 0 {
		c.FanoutID = defaultFanoutID
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
}

// frameSizeFor rounds the snap length up to a power of two so it divides the
// block size and stays a multiple of TPACKET_ALIGNMENT.
func frameSizeFor(snapLen int) int {
	if snapLen <= 16 {
		return 16
	}
	return 1 << bits.Len(uint(snapLen-1))
}
