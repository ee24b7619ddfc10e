// Package decoder implements protocol decoding.
package decoder

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"firestige.xyz/dissect/internal/core"
)

// DecodePayload tries to read data as UTF-8 text. Anything that is not
// valid UTF-8 is returned unchanged and tagged as binary. It never fails.
func DecodePayload(data []byte) core.Payload {
	text, _, err := transform.Bytes(encoding.UTF8Validator, data)
	if err != nil {
		return core.Payload{Raw: data, Binary: true}
	}
	return core.Payload{Text: string(text), Raw: data}
}
