//go:build !linux

package afpacket

import (
	"errors"

	"github.com/google/gopacket"
)

var errUnsupported = errors.New("afpacket: live capture is only supported on linux")

// Handle is unavailable outside linux.
type Handle struct{}

// Open always fails outside linux.
func Open(cfg Config) (*Handle, error) {
	return nil, errUnsupported
}

func (h *Handle) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return nil, gopacket.CaptureInfo{}, errUnsupported
}

func (h *Handle) KernelDrops() uint64 { return 0 }

func (h *Handle) Close() error { return nil }
