// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/dissect/internal/core"
)

const (
	icmpHeaderLen = 4
	udpHeaderLen  = 8

	// ports(4) seq(4) ack(4) data_offset_flags(2)
	tcpFixedPrefixLen = 14
)

// DecodeTransport dispatches on the IPv4 protocol number.
// Protocols other than ICMP, TCP and UDP are not an error: they come back as
// *core.UnknownTransport carrying data untouched.
func DecodeTransport(protocol uint8, data []byte) (core.Transport, error) {
	var (
		t   core.Transport
		err error
	)
	switch protocol {
	case core.ProtocolICMP:
		t, err = DecodeICMP(data)
	case core.ProtocolTCP:
		t, err = DecodeTCP(data)
	case core.ProtocolUDP:
		t, err = DecodeUDP(data)
	default:
		return &core.UnknownTransport{Proto: protocol, Payload: data}, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DecodeTCP decodes the fixed TCP prefix and flag bits.
// A data offset pointing past the end of data yields an empty payload.
func DecodeTCP(data []byte) (*core.TCPSegment, error) {
	if len(data) < tcpFixedPrefixLen {
		return nil, fmt.Errorf("%w: tcp header needs %d bytes, got %d",
			core.ErrTruncatedFrame, tcpFixedPrefixLen, len(data))
	}

	word := binary.BigEndian.Uint16(data[12:14])
	offset := int(word>>12) * 4
	flags := core.TCPFlags(word & 0x3F)

	payloadStart := min(offset, len(data))

	return &core.TCPSegment{
		SrcPort:    binary.BigEndian.Uint16(data[0:2]),
		DstPort:    binary.BigEndian.Uint16(data[2:4]),
		Seq:        binary.BigEndian.Uint32(data[4:8]),
		Ack:        binary.BigEndian.Uint32(data[8:12]),
		DataOffset: offset,
		URG:        flags.Has(core.FlagURG),
		ACK:        flags.Has(core.FlagACK),
		PSH:        flags.Has(core.FlagPSH),
		RST:        flags.Has(core.FlagRST),
		SYN:        flags.Has(core.FlagSYN),
		FIN:        flags.Has(core.FlagFIN),
		Payload:    data[payloadStart:],
	}, nil
}

// DecodeUDP decodes a UDP header. The declared length is reported but
// the payload always starts at offset 8.
func DecodeUDP(data []byte) (*core.UDPDatagram, error) {
	if len(data) < udpHeaderLen {
		return nil, fmt.Errorf("%w: udp header needs %d bytes, got %d",
			core.ErrTruncatedFrame, udpHeaderLen, len(data))
	}

	return &core.UDPDatagram{
		SrcPort:  binary.BigEndian.Uint16(data[0:2]),
		DstPort:  binary.BigEndian.Uint16(data[2:4]),
		Length:   binary.BigEndian.Uint16(data[4:6]),
		Checksum: binary.BigEndian.Uint16(data[6:8]),
		Payload:  data[udpHeaderLen:],
	}, nil
}

// DecodeICMP decodes the 4-byte ICMP header.
func DecodeICMP(data []byte) (*core.ICMPMessage, error) {
	if len(data) < icmpHeaderLen {
		return nil, fmt.Errorf("%w: icmp header needs %d bytes, got %d",
			core.ErrTruncatedFrame, icmpHeaderLen, len(data))
	}

	return &core.ICMPMessage{
		Type:     data[0],
		Code:     data[1],
		Checksum: binary.BigEndian.Uint16(data[2:4]),
		Payload:  data[icmpHeaderLen:],
	}, nil
}
