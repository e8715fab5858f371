// Package capture defines the packet sources that feed the ingestion lanes.
package capture

import (
	"errors"

	"github.com/google/gopacket"
)

// ErrTimeout is returned by live sources when no frame arrived within the
// poll timeout. Callers retry after checking for shutdown.
var ErrTimeout = errors.New("capture: read timeout")

// Source yields raw link-layer frames. The returned slice may alias the
// source's internal buffer and is only valid until the next call.
// A finite source returns io.EOF once it is exhausted.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	Close() error
}
