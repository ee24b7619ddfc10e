package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/config"
	"firestige.xyz/dissect/internal/core/decoder"
	"firestige.xyz/dissect/internal/sink/console"
)

var hexCmd = &cobra.Command{
	Use:   "hex <hex-frame>...",
	Short: "Dissect one hex-encoded Ethernet frame",
	Long: `Decode a single Ethernet II frame given as hex and print every layer.
Separators (spaces, ':' and '-') and a leading 0x are ignored, so the frame
may be split over several arguments.

Examples:
  dissect hex 66778899aabb0011223344550800450000...
  dissect hex "66 77 88 99 aa bb 00 11 22 33 44 55 08 00 ..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHex(cfg, strings.Join(args, ""), cmd.OutOrStdout())
	},
}

func runHex(c *config.Config, input string, out io.Writer) error {
	data, err := parseHexFrame(input)
	if err != nil {
		return err
	}

	frame, err := decoder.NewStandardDecoder(decoder.Config{DecodePayload: c.Decoder.Payload}).Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return console.WriteLayers(out, frame, c.Output.Width)
}

// parseHexFrame decodes a hex string, ignoring common byte separators.
func parseHexFrame(input string) ([]byte, error) {
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':', '-':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, fmt.Errorf("empty hex frame")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex frame: %w", err)
	}
	return data, nil
}
