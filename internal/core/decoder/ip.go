// Package decoder implements protocol decoding.
package decoder

import (
	"fmt"
	"net/netip"

	"firestige.xyz/dissect/internal/core"
)

const ipv4HeaderMinLen = 20

// DecodeIPv4 decodes an IPv4 header, options included.
// The payload starts at IHL*4 and aliases data.
func DecodeIPv4(data []byte) (core.IPv4Datagram, error) {
	if len(data) < ipv4HeaderMinLen {
		return core.IPv4Datagram{}, fmt.Errorf("%w: ipv4 header needs %d bytes, got %d",
			core.ErrTruncatedFrame, ipv4HeaderMinLen, len(data))
	}

	// IHL (Internet Header Length) - lower 4 bits of first byte, in 32-bit words
	headerLen := int(data[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen {
		return core.IPv4Datagram{}, fmt.Errorf("%w: ipv4 header length %d below minimum %d",
			core.ErrTruncatedFrame, headerLen, ipv4HeaderMinLen)
	}
	if len(data) < headerLen {
		return core.IPv4Datagram{}, fmt.Errorf("%w: ipv4 header length %d exceeds %d available bytes",
			core.ErrTruncatedFrame, headerLen, len(data))
	}

	return core.IPv4Datagram{
		Version:   data[0] >> 4,
		HeaderLen: headerLen,
		TTL:       data[8],
		Protocol:  data[9],
		SrcIP:     netip.AddrFrom4([4]byte(data[12:16])),
		DstIP:     netip.AddrFrom4([4]byte(data[16:20])),
		Payload:   data[headerLen:],
	}, nil
}
