package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/core"
	"firestige.xyz/dissect/internal/log"
	"firestige.xyz/dissect/internal/pcapfile"
)

var recordCmd = &cobra.Command{
	Use:   "record --out <capture-file> <hex-frame>...",
	Short: "Write hex-encoded frames to a new capture file",
	Long: `Create a libpcap capture file and append one record per hex-encoded
frame argument, stamped with the current time. The file can be read back with
'dissect decode' or any libpcap-compatible tool.

Examples:
  dissect record --out frames.pcap 66778899aabb... 001122334455...
  dissect record -o frames.pcap --link-type 1 66778899aabb...`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = cfg.Capture.Output
		}
		if out == "" {
			return fmt.Errorf("%w: --out or capture.output is required", core.ErrConfigInvalid)
		}

		linkType := cfg.Capture.LinkType
		if cmd.Flags().Changed("link-type") {
			linkType, _ = cmd.Flags().GetUint32("link-type")
		}

		w, err := pcapfile.Create(out, linkType)
		if err != nil {
			return err
		}
		n, err := runRecord(cmd.Context(), w, args)
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}

		log.GetLogger().WithFields(map[string]interface{}{
			"file":    out,
			"records": w.Count(),
		}).Info("capture file written")
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %d frame(s) to %s\n", n, out)
		return nil
	},
}

func init() {
	recordCmd.Flags().StringP("out", "o", "", "capture file to create (defaults to capture.output)")
	recordCmd.Flags().Uint32("link-type", 1, "link type written to the file header")
}

// frameWriter is the part of pcapfile.Writer used by record.
type frameWriter interface {
	WriteContext(ctx context.Context, frame []byte) error
}

// runRecord writes every hex frame to w, stopping at the first failure or
// when ctx is cancelled.
func runRecord(ctx context.Context, w frameWriter, frames []string) (int, error) {
	for i, arg := range frames {
		data, err := parseHexFrame(arg)
		if err != nil {
			return i, fmt.Errorf("frame %d: %w", i+1, err)
		}
		if err := w.WriteContext(ctx, data); err != nil {
			return i, fmt.Errorf("frame %d: %w", i+1, err)
		}
	}
	return len(frames), nil
}
