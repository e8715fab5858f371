package classifier

import (
	"encoding/binary"

	"firestige.xyz/sourcewatch/internal/core"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20

	// Protocol numbers
	protocolICMP = 1
	protocolTCP  = 6
	protocolUDP  = 17
)

// tcpHeader is a zero-copy view over the fixed part of a TCP header.
type tcpHeader []byte

func tcpAt(data []byte, offset int) (tcpHeader, error) {
	if len(data)-offset < tcpHeaderMinLen {
		return nil, core.ErrPacketTooShort
	}
	return tcpHeader(data[offset : offset+tcpHeaderMinLen]), nil
}

// srcPort reads the source port (2 bytes at offset 0).
func (h tcpHeader) srcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }

// udpHeader is a zero-copy view over a UDP header.
type udpHeader []byte

func udpAt(data []byte, offset int) (udpHeader, error) {
	if len(data)-offset < udpHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	return udpHeader(data[offset : offset+udpHeaderLen]), nil
}

// srcPort reads the source port (2 bytes at offset 0).
func (h udpHeader) srcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }
