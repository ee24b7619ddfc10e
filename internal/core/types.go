// Package core defines core types with zero external dependencies.
package core

import (
	"encoding/binary"
	"net/netip"
	"strings"
)

// EtherType and IP protocol numbers understood by the dissector chain.
const (
	EtherTypeIPv4 uint16 = 0x0800

	ProtocolICMP uint8 = 1
	ProtocolTCP  uint8 = 6
	ProtocolUDP  uint8 = 17
)

// EthernetFrame represents an Ethernet II frame with its 14-byte header stripped.
type EthernetFrame struct {
	DstMAC    string // AA:BB:CC:DD:EE:FF
	SrcMAC    string
	EtherType uint16 // Host order, 0x0800=IPv4
	Payload   []byte
}

// IsIPv4 reports whether the frame carries an IPv4 datagram.
func (f EthernetFrame) IsIPv4() bool {
	return f.EtherType == EtherTypeIPv4
}

// LegacyProtocol returns the EtherType after a second host-to-network swap.
// On little-endian hosts IPv4 shows up as 8 rather than 0x0800. Only meant
// for comparing against recordings made by tools that applied that swap.
func (f EthernetFrame) LegacyProtocol() uint16 {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], f.EtherType)
	return binary.NativeEndian.Uint16(b[:])
}

// IPv4Datagram represents an IPv4 header and the bytes that follow it.
type IPv4Datagram struct {
	Version   uint8
	HeaderLen int // IHL*4, 20..60
	TTL       uint8
	Protocol  uint8 // ICMP=1, TCP=6, UDP=17
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Payload   []byte
}

// Transport is one of *TCPSegment, *UDPDatagram, *ICMPMessage or *UnknownTransport.
type Transport interface {
	// Protocol returns the IP protocol number the variant was dispatched on.
	Protocol() uint8
	// LayerPayload returns the bytes following the transport header.
	LayerPayload() []byte

	transport()
}

// TCPFlags holds the six classic TCP control bits in their wire positions.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

var flagNames = []struct {
	flag TCPFlags
	name string
}{
	{FlagSYN, "SYN"},
	{FlagACK, "ACK"},
	{FlagFIN, "FIN"},
	{FlagRST, "RST"},
	{FlagPSH, "PSH"},
	{FlagURG, "URG"},
}

// Has reports whether every bit in mask is set.
func (f TCPFlags) Has(mask TCPFlags) bool {
	return f&mask == mask
}

// String concatenates the names of the set flags, e.g. "SYNACK".
func (f TCPFlags) String() string {
	var sb strings.Builder
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			sb.WriteString(fn.name)
		}
	}
	return sb.String()
}

// TCPSegment represents a TCP header and its payload.
type TCPSegment struct {
	SrcPort    uint16
	DstPort    uint16
	Seq        uint32
	Ack        uint32
	DataOffset int // Header length in bytes taken from the data offset nibble
	URG        bool
	ACK        bool
	PSH        bool
	RST        bool
	SYN        bool
	FIN        bool
	Payload    []byte
}

func (s *TCPSegment) Protocol() uint8      { return ProtocolTCP }
func (s *TCPSegment) LayerPayload() []byte { return s.Payload }
func (s *TCPSegment) transport()           {}

// Flags packs the flag booleans back into a TCPFlags value.
func (s *TCPSegment) Flags() TCPFlags {
	var f TCPFlags
	set := func(on bool, bit TCPFlags) {
		if on {
			f |= bit
		}
	}
	set(s.URG, FlagURG)
	set(s.ACK, FlagACK)
	set(s.PSH, FlagPSH)
	set(s.RST, FlagRST)
	set(s.SYN, FlagSYN)
	set(s.FIN, FlagFIN)
	return f
}

// UDPDatagram represents a UDP header and its payload.
type UDPDatagram struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16 // Declared length field, not used to slice the payload
	Checksum uint16
	Payload  []byte
}

func (d *UDPDatagram) Protocol() uint8      { return ProtocolUDP }
func (d *UDPDatagram) LayerPayload() []byte { return d.Payload }
func (d *UDPDatagram) transport()           {}

// ICMPMessage represents an ICMP header and its payload.
type ICMPMessage struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Payload  []byte
}

func (m *ICMPMessage) Protocol() uint8      { return ProtocolICMP }
func (m *ICMPMessage) LayerPayload() []byte { return m.Payload }
func (m *ICMPMessage) transport()           {}

// UnknownTransport carries the untouched IPv4 payload of a protocol the chain does not decode.
type UnknownTransport struct {
	Proto   uint8
	Payload []byte
}

func (u *UnknownTransport) Protocol() uint8      { return u.Proto }
func (u *UnknownTransport) LayerPayload() []byte { return u.Payload }
func (u *UnknownTransport) transport()           {}

// Payload is the best-effort application view of a transport payload.
// Binary payloads keep the original bytes in Raw and leave Text empty.
type Payload struct {
	Text   string
	Raw    []byte
	Binary bool
}

// String returns the text form, or \xNN escapes for binary payloads.
func (p Payload) String() string {
	if !p.Binary {
		return p.Text
	}
	const hex = "0123456789abcdef"
	var sb strings.Builder
	sb.Grow(len(p.Raw) * 4)
	for _, c := range p.Raw {
		sb.WriteString(`\x`)
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0F])
	}
	return sb.String()
}
