package classifier

import (
	"encoding/binary"

	"firestige.xyz/sourcewatch/internal/core"
)

const ipv4HeaderMinLen = 20

// ipv4Header is a zero-copy view over an IPv4 header, options included.
type ipv4Header []byte

// ipv4At returns the IPv4 header starting at offset. The view is only built
// once the fixed part and the IHL-declared length both fit in data.
func ipv4At(data []byte, offset int) (ipv4Header, error) {
	if len(data)-offset < ipv4HeaderMinLen {
		return nil, core.ErrPacketTooShort
	}
	h := data[offset:]

	if h[0]>>4 != 4 {
		return nil, core.ErrMalformedHeader
	}

	// IHL is in 32-bit words
	headerLen := int(h[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen {
		return nil, core.ErrMalformedHeader
	}
	if len(h) < headerLen {
		return nil, core.ErrPacketTooShort
	}
	return ipv4Header(h[:headerLen]), nil
}

func (h ipv4Header) headerLen() int { return len(h) }

// protocol reads the Protocol field (1 byte at offset 9).
func (h ipv4Header) protocol() uint8 { return h[9] }

// srcAddr reads the source address (4 bytes at offset 12) into host order.
func (h ipv4Header) srcAddr() uint32 {
	return binary.BigEndian.Uint32(h[12:16])
}
