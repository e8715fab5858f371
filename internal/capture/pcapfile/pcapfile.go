// Package pcapfile replays frames from a pcap or pcapng capture file.
package pcapfile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/sourcewatch/internal/capture"
)

// pcapng section header block type, used to sniff the file format.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Reader is a capture.Source over a capture file. It returns io.EOF once
// every frame has been read.
type Reader struct {
	path string
	f    *os.File
	r    packetReader
}

var _ capture.Source = (*Reader)(nil)

// Open opens a pcap or pcapng file. Only Ethernet captures are accepted.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	r, err := newPacketReader(bufio.NewReader(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file %s: %w", path, err)
	}
	if lt := r.LinkType(); lt != layers.LinkTypeEthernet {
		f.Close()
		return nil, fmt.Errorf("capture file %s: unsupported link type %s", path, lt)
	}

	return &Reader{path: path, f: f, r: r}, nil
}

func newPacketReader(br *bufio.Reader) (packetReader, error) {
	head, err := br.Peek(len(ngMagic))
	if err != nil {
		return nil, err
	}
	if bytes.Equal(head, ngMagic) {
		return pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	}
	return pcapgo.NewReader(br)
}

// ReadPacketData returns the next frame.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := r.r.ReadPacketData()
	if err == io.EOF {
		return nil, ci, io.EOF
	}
	if err != nil {
		return nil, ci, fmt.Errorf("failed to read packet from %s: %w", r.path, err)
	}
	return data, ci, nil
}

// Path returns the file being replayed.
func (r *Reader) Path() string {
	return r.path
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
