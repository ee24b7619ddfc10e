// Package decoder implements protocol decoding.
package decoder

import (
	"fmt"

	"firestige.xyz/dissect/internal/core"
)

const macLen = 6

// FormatMAC renders a 6-byte hardware address as AA:BB:CC:DD:EE:FF.
func FormatMAC(addr []byte) (string, error) {
	if len(addr) != macLen {
		return "", fmt.Errorf("%w: want %d bytes, got %d", core.ErrMalformedAddress, macLen, len(addr))
	}

	const hex = "0123456789ABCDEF"
	buf := make([]byte, 0, macLen*3-1)
	for i, b := range addr {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, hex[b>>4], hex[b&0x0F])
	}
	return string(buf), nil
}
