// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers match them with errors.Is; decoders and the
// capture writer wrap them with layer or sink context.
var (
	// Frame decoding errors
	ErrTruncatedFrame   = errors.New("dissect: truncated frame")
	ErrMalformedAddress = errors.New("dissect: malformed hardware address")

	// Capture file errors
	ErrIO           = errors.New("dissect: capture sink write failed")
	ErrClosedWriter = errors.New("dissect: capture writer closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("dissect: invalid configuration")
)
