package classifier

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/sourcewatch/internal/core"
)

var (
	srcMAC = net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	dstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

// serialize builds a frame from gopacket layers with lengths fixed up.
func serialize(tb testing.TB, ls ...gopacket.SerializableLayer) []byte {
	tb.Helper()
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, ls...)
	require.NoError(tb, err)
	return buf.Bytes()
}

func ethIPv4() *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
}

func ipv4(proto layers.IPProtocol, src string) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.IP{198, 51, 100, 7},
	}
}

func tcpPacket(tb testing.TB, src string, port uint16) []byte {
	return serialize(tb,
		ethIPv4(),
		ipv4(layers.IPProtocolTCP, src),
		&layers.TCP{SrcPort: layers.TCPPort(port), DstPort: 51000, DataOffset: 5, SYN: true},
	)
}

func udpPacket(tb testing.TB, src string, port uint16) []byte {
	return serialize(tb,
		ethIPv4(),
		ipv4(layers.IPProtocolUDP, src),
		&layers.UDP{SrcPort: layers.UDPPort(port), DstPort: 53},
		gopacket.Payload([]byte{0x01, 0x02, 0x03, 0x04}),
	)
}

func TestClassifyTCP(t *testing.T) {
	out, err := Classify(tcpPacket(t, "192.0.2.10", 443))
	require.NoError(t, err)

	assert.Equal(t, core.VerdictEmit, out.Verdict)
	assert.Equal(t, uint32(3221225994), out.Addr.Addr)
	assert.Equal(t, uint16(443), out.Addr.Port)
}

func TestClassifyUDP(t *testing.T) {
	out, err := Classify(udpPacket(t, "10.1.2.3", 5353))
	require.NoError(t, err)

	assert.Equal(t, core.VerdictEmit, out.Verdict)
	assert.Equal(t, core.SourceAddr{Addr: 0x0A010203, Port: 5353}, out.Addr)
}

func TestClassifyPass(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
	}{
		{
			name: "ipv6",
			packet: serialize(t,
				&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6},
				&layers.IPv6{
					Version:    6,
					NextHeader: layers.IPProtocolUDP,
					HopLimit:   64,
					SrcIP:      net.ParseIP("2001:db8::1"),
					DstIP:      net.ParseIP("2001:db8::2"),
				},
				&layers.UDP{SrcPort: 1000, DstPort: 2000},
			),
		},
		{
			name: "arp",
			packet: serialize(t,
				&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP},
				&layers.ARP{
					AddrType:          layers.LinkTypeEthernet,
					Protocol:          layers.EthernetTypeIPv4,
					HwAddressSize:     6,
					ProtAddressSize:   4,
					Operation:         layers.ARPRequest,
					SourceHwAddress:   srcMAC,
					SourceProtAddress: []byte{192, 0, 2, 1},
					DstHwAddress:      make([]byte, 6),
					DstProtAddress:    []byte{192, 0, 2, 2},
				},
			),
		},
		{
			name: "icmp",
			packet: serialize(t,
				ethIPv4(),
				ipv4(layers.IPProtocolICMPv4, "192.0.2.10"),
				&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)},
			),
		},
		{
			// ipv6 ethertype with nothing behind it is still not our concern
			name:   "bare ipv6 ethertype",
			packet: []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x86, 0xDD},
		},
		{
			name: "vlan tagged without vlan option",
			packet: serialize(t,
				&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
				&layers.Dot1Q{VLANIdentifier: 10, Type: layers.EthernetTypeIPv4},
				ipv4(layers.IPProtocolTCP, "192.0.2.10"),
				&layers.TCP{SrcPort: 443, DstPort: 51000, DataOffset: 5},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Classify(tt.packet)
			require.NoError(t, err)
			assert.Equal(t, core.VerdictPass, out.Verdict)
			assert.Equal(t, core.SourceAddr{}, out.Addr)
		})
	}
}

func TestClassifyUnsupportedProtocol(t *testing.T) {
	for _, proto := range []layers.IPProtocol{
		layers.IPProtocolGRE,
		layers.IPProtocolSCTP,
		layers.IPProtocolIGMP,
		layers.IPProtocolESP,
	} {
		t.Run(proto.String(), func(t *testing.T) {
			packet := serialize(t,
				ethIPv4(),
				ipv4(proto, "192.0.2.10"),
				gopacket.Payload(make([]byte, 32)),
			)
			out, err := Classify(packet)
			assert.ErrorIs(t, err, core.ErrUnsupportedProto)
			assert.Equal(t, core.VerdictDrop, out.Verdict)
		})
	}
}

// guarded returns a slice of exactly n bytes copied from src whose backing
// array continues with sentinel bytes. The capacity is clipped to n so any
// read past the end panics instead of silently hitting the sentinel.
func guarded(src []byte, n int) []byte {
	backing := make([]byte, n+64)
	for i := range backing {
		backing[i] = 0xA5
	}
	copy(backing, src[:n])
	return backing[:n:n]
}

func TestClassifyShorterThanEthernet(t *testing.T) {
	full := tcpPacket(t, "192.0.2.10", 443)

	for n := 0; n < ethernetHeaderLen; n++ {
		buf := guarded(full, n)
		assert.NotPanics(t, func() {
			out, err := Classify(buf)
			assert.ErrorIs(t, err, core.ErrPacketTooShort, "length %d", n)
			assert.Equal(t, core.VerdictDrop, out.Verdict, "length %d", n)
		})
	}
}

func TestClassifyTruncatedPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		packet []byte
		full   int // length at which the packet becomes classifiable
	}{
		{"tcp", tcpPacket(t, "192.0.2.10", 443), ethernetHeaderLen + ipv4HeaderMinLen + tcpHeaderMinLen},
		{"udp", udpPacket(t, "192.0.2.10", 53), ethernetHeaderLen + ipv4HeaderMinLen + udpHeaderLen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for n := 0; n < tt.full; n++ {
				buf := guarded(tt.packet, n)
				out, err := Classify(buf)
				assert.ErrorIs(t, err, core.ErrPacketTooShort, "length %d", n)
				assert.Equal(t, core.VerdictDrop, out.Verdict, "length %d", n)
			}
			for n := tt.full; n <= len(tt.packet); n++ {
				out, err := Classify(guarded(tt.packet, n))
				assert.NoError(t, err, "length %d", n)
				assert.Equal(t, core.VerdictEmit, out.Verdict, "length %d", n)
			}
		})
	}
}

// rawIPv4 hand-builds an Ethernet/IPv4 frame with the given first IP byte
// (version + IHL), protocol, options and L4 bytes.
func rawIPv4(verIHL byte, proto byte, options []byte, l4 []byte) []byte {
	packet := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, // Dst MAC
		0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, // Src MAC
		0x08, 0x00, // EtherType: IPv4
		verIHL, 0x00, // Version/IHL, DSCP/ECN
		0x00, 0x00, // Total Length (not checked)
		0x12, 0x34, // Identification
		0x00, 0x00, // Flags, Fragment Offset
		0x40,       // TTL: 64
		proto,      // Protocol
		0x00, 0x00, // Checksum (not checked)
		192, 0, 2, 10, // Src IP
		198, 51, 100, 7, // Dst IP
	}
	packet = append(packet, options...)
	return append(packet, l4...)
}

func TestClassifyIPv4Options(t *testing.T) {
	// IHL 6: one 4-byte option word (NOP x3 + EOL) before the UDP header
	udp := []byte{0x13, 0x88, 0x00, 0x35, 0x00, 0x08, 0x00, 0x00}
	packet := rawIPv4(0x46, protocolUDP, []byte{0x01, 0x01, 0x01, 0x00}, udp)

	out, err := Classify(packet)
	require.NoError(t, err)
	assert.Equal(t, core.VerdictEmit, out.Verdict)
	assert.Equal(t, uint16(5000), out.Addr.Port)
}

func TestClassifyMalformedIPv4(t *testing.T) {
	tcp := make([]byte, tcpHeaderMinLen)
	tcp[0], tcp[1] = 0x01, 0xBB

	tests := []struct {
		name    string
		packet  []byte
		wantErr error
	}{
		{"ihl below minimum", rawIPv4(0x44, protocolTCP, nil, tcp), core.ErrMalformedHeader},
		{"ihl zero", rawIPv4(0x40, protocolTCP, nil, tcp), core.ErrMalformedHeader},
		{"version 6 in ipv4 frame", rawIPv4(0x65, protocolTCP, nil, tcp), core.ErrMalformedHeader},
		// IHL 15 claims 60 bytes, only 20 + 20 present
		{"ihl beyond buffer", rawIPv4(0x4F, protocolTCP, nil, nil), core.ErrPacketTooShort},
		// IHL 15 fits, but the TCP header behind the options does not
		{"ihl leaves no room for tcp", rawIPv4(0x4F, protocolTCP, make([]byte, 40), tcp[:10]), core.ErrPacketTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := guarded(tt.packet, len(tt.packet))
			out, err := Classify(buf)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, core.VerdictDrop, out.Verdict)
		})
	}
}

func TestClassifierVLAN(t *testing.T) {
	c := New(Options{VLAN: true})

	t.Run("single tag", func(t *testing.T) {
		packet := serialize(t,
			&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
			&layers.Dot1Q{VLANIdentifier: 10, Type: layers.EthernetTypeIPv4},
			ipv4(layers.IPProtocolTCP, "192.0.2.10"),
			&layers.TCP{SrcPort: 443, DstPort: 51000, DataOffset: 5},
		)
		out, err := c.Classify(packet)
		require.NoError(t, err)
		assert.Equal(t, core.VerdictEmit, out.Verdict)
		assert.Equal(t, core.SourceAddr{Addr: 3221225994, Port: 443}, out.Addr)
	})

	t.Run("qinq", func(t *testing.T) {
		packet := serialize(t,
			&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeQinQ},
			&layers.Dot1Q{VLANIdentifier: 20, Type: layers.EthernetTypeDot1Q},
			&layers.Dot1Q{VLANIdentifier: 10, Type: layers.EthernetTypeIPv4},
			ipv4(layers.IPProtocolUDP, "192.0.2.10"),
			&layers.UDP{SrcPort: 123, DstPort: 123},
		)
		out, err := c.Classify(packet)
		require.NoError(t, err)
		assert.Equal(t, core.VerdictEmit, out.Verdict)
		assert.Equal(t, uint16(123), out.Addr.Port)
	})

	t.Run("third tag is passed", func(t *testing.T) {
		packet := serialize(t,
			&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeQinQ},
			&layers.Dot1Q{VLANIdentifier: 30, Type: layers.EthernetTypeDot1Q},
			&layers.Dot1Q{VLANIdentifier: 20, Type: layers.EthernetTypeDot1Q},
			&layers.Dot1Q{VLANIdentifier: 10, Type: layers.EthernetTypeIPv4},
			ipv4(layers.IPProtocolUDP, "192.0.2.10"),
			&layers.UDP{SrcPort: 123, DstPort: 123},
		)
		out, err := c.Classify(packet)
		require.NoError(t, err)
		assert.Equal(t, core.VerdictPass, out.Verdict)
	})

	t.Run("truncated tag", func(t *testing.T) {
		packet := []byte{
			0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
			0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
			0x81, 0x00, // EtherType: VLAN
			0x00, 0x0A, // TCI only, inner EtherType missing
		}
		out, err := c.Classify(guarded(packet, len(packet)))
		assert.ErrorIs(t, err, core.ErrPacketTooShort)
		assert.Equal(t, core.VerdictDrop, out.Verdict)
	})
}

func TestClassifyDoesNotAllocate(t *testing.T) {
	packet := tcpPacket(t, "192.0.2.10", 443)
	short := packet[:20]

	allocs := testing.AllocsPerRun(100, func() {
		_, _ = Classify(packet)
		_, _ = Classify(short)
	})
	assert.Zero(t, allocs)
}

func TestClassifyDoesNotMutate(t *testing.T) {
	packet := tcpPacket(t, "192.0.2.10", 443)
	before := append([]byte(nil), packet...)

	_, err := Classify(packet)
	require.NoError(t, err)
	assert.Equal(t, before, packet)
}

func FuzzClassify(f *testing.F) {
	f.Add(tcpPacket(f, "192.0.2.10", 443))
	f.Add(udpPacket(f, "10.0.0.1", 53))
	f.Add([]byte{})
	f.Add(rawIPv4(0x4F, protocolTCP, nil, nil))

	vlan := New(Options{VLAN: true})
	f.Fuzz(func(t *testing.T, data []byte) {
		for _, c := range []Classifier{std, vlan} {
			out, err := c.Classify(data)
			if err != nil {
				if out.Verdict != core.VerdictDrop {
					t.Fatalf("error %v with verdict %v", err, out.Verdict)
				}
				continue
			}
			if out.Verdict == core.VerdictDrop {
				t.Fatal("drop without error")
			}
			if out.Verdict == core.VerdictEmit && len(data) < ethernetHeaderLen+ipv4HeaderMinLen+udpHeaderLen {
				t.Fatalf("emit from %d bytes", len(data))
			}
		}
	})
}

func BenchmarkClassifyTCP(b *testing.B) {
	packet := tcpPacket(b, "192.0.2.10", 443)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Classify(packet); err != nil {
			b.Fatal(err)
		}
	}
}
