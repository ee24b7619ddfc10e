// Package core defines core data structures with zero external dependencies.
package core

import "time"

// RawFrame is one link-layer frame handed over by a capture collaborator.
type RawFrame struct {
	Data       []byte    // Raw frame bytes
	Timestamp  time.Time // Capture timestamp
	CaptureLen uint32    // Bytes present in Data
	OrigLen    uint32    // Length of the frame on the wire
}

// DecodedFrame is the result of running one frame through the dissector chain.
// Layers that were not reached are nil.
type DecodedFrame struct {
	Ethernet    EthernetFrame
	IPv4        *IPv4Datagram // nil unless EtherType is IPv4
	Transport   Transport     // nil unless IPv4 was decoded
	Application *Payload      // nil unless payload decoding ran on a non-empty TCP/UDP payload
	Length      int           // Length of the input frame in bytes
}
