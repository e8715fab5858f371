package classifier

import "firestige.xyz/sourcewatch/internal/core"

// Options tune classification.
type Options struct {
	// VLAN strips up to two 802.1Q/802.1ad tags before the EtherType check.
	// When false, tagged frames are passed like any other non-IPv4 frame.
	VLAN bool
}

// Classifier turns raw Ethernet frames into a pass/drop/emit decision.
// It holds no mutable state and is safe for concurrent use by any number
// of ingestion lanes.
type Classifier struct {
	opts Options
}

// New creates a classifier.
func New(opts Options) Classifier {
	return Classifier{opts: opts}
}

var (
	pass = core.Outcome{Verdict: core.VerdictPass}
	drop = core.Outcome{Verdict: core.VerdictDrop}
)

// Classify parses data as Ethernet -> IPv4 -> TCP/UDP/ICMP.
//
// A non-nil error always comes with VerdictDrop: ErrPacketTooShort when a
// header does not fit, ErrMalformedHeader for an invalid IPv4 version or
// IHL, ErrUnsupportedProto for any IPv4 protocol other than TCP, UDP and
// ICMP. Non-IPv4 frames and ICMP are VerdictPass. data is never written
// and never read past len(data).
func (c Classifier) Classify(data []byte) (core.Outcome, error) {
	eth, err := ethernetAt(data)
	if err != nil {
		return drop, err
	}

	etherType := eth.etherType()
	offset := ethernetHeaderLen
	if c.opts.VLAN {
		etherType, offset, err = skipVLAN(data, etherType, offset)
		if err != nil {
			return drop, err
		}
	}
	if etherType != etherTypeIPv4 {
		return pass, nil
	}

	ip, err := ipv4At(data, offset)
	if err != nil {
		return drop, err
	}
	offset += ip.headerLen()

	var port uint16
	switch ip.protocol() {
	case protocolTCP:
		tcp, err := tcpAt(data, offset)
		if err != nil {
			return drop, err
		}
		port = tcp.srcPort()
	case protocolUDP:
		udp, err := udpAt(data, offset)
		if err != nil {
			return drop, err
		}
		port = udp.srcPort()
	case protocolICMP:
		return pass, nil
	default:
		return drop, core.ErrUnsupportedProto
	}

	return core.Outcome{
		Verdict: core.VerdictEmit,
		Addr:    core.SourceAddr{Addr: ip.srcAddr(), Port: port},
	}, nil
}

var std = Classifier{}

// Classify classifies data with the default options.
func Classify(data []byte) (core.Outcome, error) {
	return std.Classify(data)
}
