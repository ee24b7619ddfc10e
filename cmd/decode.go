package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"firestige.xyz/dissect/internal/config"
	"firestige.xyz/dissect/internal/core"
	"firestige.xyz/dissect/internal/core/decoder"
	"firestige.xyz/dissect/internal/filter"
	"firestige.xyz/dissect/internal/log"
	"firestige.xyz/dissect/internal/pcapfile"
	"firestige.xyz/dissect/internal/pipeline"
	"firestige.xyz/dissect/internal/sink/console"
	"firestige.xyz/dissect/internal/source/file"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <capture-file>",
	Short: "Dissect every frame of a capture file",
	Long: `Replay a libpcap capture file through the dissector chain and print one
observation per IPv4 TCP, UDP or ICMP frame. Frames that fail to decode are
counted and skipped. With --write, frames that pass the filter are recorded
to a new capture file with their original timestamps.

Examples:
  dissect decode capture.pcap
  dissect decode --format json --protocol udp capture.pcap
  dissect decode --hexdump --port 53 capture.pcap
  dissect decode --write http.pcap --protocol tcp --port 80 capture.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyDecodeFlags(cmd, cfg); err != nil {
			return err
		}
		stats, err := runDecode(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		if err != nil {
			return err
		}
		log.GetLogger().WithFields(map[string]interface{}{
			"received":      stats.Received,
			"filtered":      stats.Filtered,
			"decode_errors": stats.DecodeErrors,
			"reported":      stats.Reported,
			"recorded":      stats.Recorded,
		}).Info("decode finished")
		return nil
	},
}

func init() {
	f := decodeCmd.Flags()
	f.StringP("write", "w", "", "record frames that pass the filter to this capture file")
	f.StringP("format", "f", "", "output format: text, json, yaml or log")
	f.Bool("hexdump", false, "append payload bytes to text output")
	f.Bool("no-payload", false, "skip best-effort text decoding of payloads")
	f.String("protocol", "", "keep only tcp, udp or icmp frames")
	f.Int("port", 0, "keep only frames with this source or destination port")
}

// applyDecodeFlags overlays explicitly set flags on c.
func applyDecodeFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("write") {
		c.Capture.Output, _ = f.GetString("write")
	}
	if f.Changed("format") {
		c.Output.Format, _ = f.GetString("format")
	}
	if f.Changed("hexdump") {
		c.Output.Hexdump, _ = f.GetBool("hexdump")
	}
	if f.Changed("no-payload") {
		noPayload, _ := f.GetBool("no-payload")
		c.Decoder.Payload = !noPayload
	}
	if f.Changed("protocol") {
		c.Filter.Protocol, _ = f.GetString("protocol")
	}
	if f.Changed("port") {
		c.Filter.Port, _ = f.GetInt("port")
	}
	return c.Validate()
}

// runDecode replays path through the pipeline and writes observations to out.
func runDecode(ctx context.Context, c *config.Config, path string, out io.Writer) (pipeline.Stats, error) {
	src, err := file.NewSource(path)
	if err != nil {
		return pipeline.Stats{}, err
	}
	if err := src.Start(ctx); err != nil {
		return pipeline.Stats{}, err
	}
	defer src.Stop()

	if lt := src.LinkType(); lt != layers.LinkTypeEthernet {
		return pipeline.Stats{}, fmt.Errorf("%w: unsupported link type %s in %s", core.ErrConfigInvalid, lt, path)
	}

	flt, err := filter.New(filter.Config{
		Protocol: c.Filter.Protocol,
		Port:     uint16(c.Filter.Port),
	})
	if err != nil {
		return pipeline.Stats{}, err
	}
	log.GetLogger().WithField("instructions", len(flt.Program())).Debug("frame filter compiled")

	sink, err := console.NewSink(out, c.Output)
	if err != nil {
		return pipeline.Stats{}, err
	}
	defer sink.Close()

	b := pipeline.NewBuilder().
		WithSource(src).
		WithDecoder(decoder.NewStandardDecoder(decoder.Config{DecodePayload: c.Decoder.Payload})).
		WithFilter(flt).
		WithSinks(sink)

	var w *pcapfile.Writer
	if c.Capture.Output != "" {
		w, err = pcapfile.Create(c.Capture.Output, uint32(src.LinkType()))
		if err != nil {
			return pipeline.Stats{}, err
		}
		b.WithRecorder(w)
	}

	p := b.Build()
	runErr := p.Run(ctx)

	if w != nil {
		if err := w.Close(); err != nil && runErr == nil {
			runErr = err
		}
		log.GetLogger().WithFields(map[string]interface{}{
			"file":    c.Capture.Output,
			"records": w.Count(),
		}).Info("capture file written")
	}
	return p.Stats(), runErr
}
