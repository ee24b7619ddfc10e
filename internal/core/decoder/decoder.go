// Package decoder implements the Ethernet -> IPv4 -> TCP/UDP/ICMP dissector chain.
package decoder

import (
	"fmt"

	"firestige.xyz/dissect/internal/core"
)

// Decoder decodes raw frames into structured format.
type Decoder interface {
	Decode(data []byte) (core.DecodedFrame, error)
}

// Config controls optional stages of the chain.
type Config struct {
	// DecodePayload enables best-effort text decoding of non-empty TCP/UDP payloads.
	DecodePayload bool
}

// StandardDecoder runs the full dissector chain. It holds no per-frame state
// and is safe for concurrent use.
type StandardDecoder struct {
	cfg Config
}

// NewStandardDecoder creates a decoder.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	return &StandardDecoder{cfg: cfg}
}

// Decode decodes one Ethernet II frame. Non-IPv4 frames stop after the
// Ethernet layer without error. A truncated layer aborts the whole frame.
func (d *StandardDecoder) Decode(data []byte) (core.DecodedFrame, error) {
	eth, err := DecodeEthernet(data)
	if err != nil {
		return core.DecodedFrame{}, err
	}

	frame := core.DecodedFrame{
		Ethernet: eth,
		Length:   len(data),
	}
	if !eth.IsIPv4() {
		return frame, nil
	}

	ip, err := DecodeIPv4(eth.Payload)
	if err != nil {
		return core.DecodedFrame{}, err
	}
	frame.IPv4 = &ip

	transport, err := DecodeTransport(ip.Protocol, ip.Payload)
	if err != nil {
		return core.DecodedFrame{}, fmt.Errorf("protocol %d: %w", ip.Protocol, err)
	}
	frame.Transport = transport

	if d.cfg.DecodePayload {
		switch transport.(type) {
		case *core.TCPSegment, *core.UDPDatagram:
			if payload := transport.LayerPayload(); len(payload) > 0 {
				p := DecodePayload(payload)
				frame.Application = &p
			}
		}
	}

	return frame, nil
}
