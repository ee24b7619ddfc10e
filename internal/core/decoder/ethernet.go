// Package decoder implements protocol decoding.
package decoder

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/dissect/internal/core"
)

// Ethernet II header: dst(6) src(6) ethertype(2)
const ethernetHeaderLen = 14

// DecodeEthernet strips the Ethernet II header.
// The payload aliases data.
func DecodeEthernet(data []byte) (core.EthernetFrame, error) {
	if len(data) < ethernetHeaderLen {
		return core.EthernetFrame{}, fmt.Errorf("%w: ethernet header needs %d bytes, got %d",
			core.ErrTruncatedFrame, ethernetHeaderLen, len(data))
	}

	// Lengths are checked above, FormatMAC cannot fail here.
	dst, _ := FormatMAC(data[0:6])
	src, _ := FormatMAC(data[6:12])

	return core.EthernetFrame{
		DstMAC: dst,
		SrcMAC: src,
		// Network to host order
		EtherType: binary.BigEndian.Uint16(data[12:14]),
		Payload:   data[ethernetHeaderLen:],
	}, nil
}
