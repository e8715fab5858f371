// Package classifier implements per-packet classification.
package classifier

import (
	"encoding/binary"

	"firestige.xyz/sourcewatch/internal/core"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4
	maxVLANTags       = 2

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeVLAN = 0x8100
	etherTypeQinQ = 0x88A8
)

// ethernetHeader is a zero-copy view over an Ethernet II header.
type ethernetHeader []byte

// ethernetAt returns the Ethernet header at the start of data.
func ethernetAt(data []byte) (ethernetHeader, error) {
	if len(data) < ethernetHeaderLen {
		return nil, core.ErrPacketTooShort
	}
	return ethernetHeader(data[:ethernetHeaderLen]), nil
}

// etherType reads the EtherType (2 bytes at offset 12).
func (h ethernetHeader) etherType() uint16 {
	return binary.BigEndian.Uint16(h[12:14])
}

// skipVLAN strips at most maxVLANTags 802.1Q/802.1ad tags starting at offset.
// Returns the inner EtherType and the offset of the L3 header.
func skipVLAN(data []byte, etherType uint16, offset int) (uint16, int, error) {
	for i := 0; i < maxVLANTags; i++ {
		if etherType != etherTypeVLAN && etherType != etherTypeQinQ {
			break
		}
		if len(data)-offset < vlanHeaderLen {
			return 0, offset, core.ErrPacketTooShort
		}
		// VLAN header: 2 bytes TCI + 2 bytes EtherType
		etherType = binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += vlanHeaderLen
	}
	return etherType, offset, nil
}
