// Package core defines core types with zero external dependencies.
package core

import (
	"net/netip"
	"strconv"
)

// SourceAddr identifies the origin of an IPv4 TCP/UDP packet.
// Both fields are in host byte order.
type SourceAddr struct {
	Addr uint32
	Port uint16
}

// IP returns the address as a netip.Addr.
func (s SourceAddr) IP() netip.Addr {
	return netip.AddrFrom4([4]byte{
		byte(s.Addr >> 24),
		byte(s.Addr >> 16),
		byte(s.Addr >> 8),
		byte(s.Addr),
	})
}

// String formats the record as A.B.C.D:P.
func (s SourceAddr) String() string {
	return s.IP().String() + ":" + strconv.Itoa(int(s.Port))
}

// Verdict is the decision taken for a single packet.
type Verdict uint8

const (
	// VerdictPass means the packet is not our concern; let it through.
	VerdictPass Verdict = iota
	// VerdictDrop means the packet could not be safely parsed; emit nothing.
	VerdictDrop
	// VerdictEmit means a SourceAddr was extracted.
	VerdictEmit
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictDrop:
		return "drop"
	case VerdictEmit:
		return "emit"
	default:
		return "unknown"
	}
}

// Outcome is the result of classifying one packet. Addr is only meaningful
// when Verdict is VerdictEmit.
type Outcome struct {
	Verdict Verdict
	Addr    SourceAddr
}
