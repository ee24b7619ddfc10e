// Package console prints observations in a human-readable or structured form.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"firestige.xyz/dissect/internal/config"
	"firestige.xyz/dissect/internal/core"
	"firestige.xyz/dissect/internal/log"
	"firestige.xyz/dissect/internal/observation"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatLog  = "log"

	// HexPrefix indents hexdump lines under the observation line.
	HexPrefix = dataTab1

	defaultWidth = 80
)

// Sink writes one entry per observation to out.
type Sink struct {
	out     io.Writer
	format  string
	hexdump bool
	width   int

	mu    sync.Mutex
	count atomic.Uint64
}

// NewSink creates a sink. An empty format means text.
func NewSink(out io.Writer, cfg config.OutputConfig) (*Sink, error) {
	format := cfg.Format
	if format == "" {
		format = FormatText
	}
	switch format {
	case FormatText, FormatJSON, FormatYAML, FormatLog:
	default:
		return nil, fmt.Errorf("%w: invalid format %q, must be text, json, yaml or log", core.ErrConfigInvalid, format)
	}

	width := cfg.Width
	if width <= 0 {
		width = defaultWidth
	}

	return &Sink{
		out:     out,
		format:  format,
		hexdump: cfg.Hexdump,
		width:   width,
	}, nil
}

// Send outputs obs. frame supplies the payload for the text hexdump.
func (s *Sink) Send(obs observation.Observation, frame core.DecodedFrame) error {
	s.count.Add(1)

	switch s.format {
	case FormatJSON:
		return s.sendJSON(obs)
	case FormatYAML:
		return s.sendYAML(obs)
	case FormatLog:
		return s.sendLog(obs)
	default:
		return s.sendText(obs, frame)
	}
}

func (s *Sink) sendJSON(obs observation.Observation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("json marshal failed: %w", err)
	}
	return s.write(string(data) + "\n")
}

func (s *Sink) sendYAML(obs observation.Observation) error {
	data, err := yaml.Marshal(obs)
	if err != nil {
		return fmt.Errorf("yaml marshal failed: %w", err)
	}
	return s.write("---\n" + string(data))
}

func (s *Sink) sendLog(obs observation.Observation) error {
	fields, err := Fields(obs)
	if err != nil {
		return err
	}
	log.GetLogger().WithFields(fields).Info("observation")
	return nil
}

func (s *Sink) sendText(obs observation.Observation, frame core.DecodedFrame) error {
	var b strings.Builder
	b.WriteString(Line(obs))

	if frame.Application != nil && !frame.Application.Binary {
		fmt.Fprintf(&b, " payload=%q", frame.Application.Text)
	}
	b.WriteByte('\n')

	if s.hexdump && frame.Transport != nil {
		if payload := frame.Transport.LayerPayload(); len(payload) > 0 {
			b.WriteString(FormatMultiLine(HexPrefix, payload, s.width))
			b.WriteByte('\n')
		}
	}
	return s.write(b.String())
}

func (s *Sink) write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.out, text); err != nil {
		return fmt.Errorf("%w: console write: %w", core.ErrIO, err)
	}
	return nil
}

// Count returns the number of observations sent.
func (s *Sink) Count() uint64 {
	return s.count.Load()
}

// Close logs the total. The writer is owned by the caller.
func (s *Sink) Close() error {
	log.GetLogger().WithField("total_reported", s.count.Load()).Debug("console sink closed")
	return nil
}

// Line renders obs on one line, e.g.
// "12:00:00.000001 TCP 10.0.0.1:1234 -> 10.0.0.2:80 flags=SYN len=60".
func Line(obs observation.Observation) string {
	var b strings.Builder
	b.WriteString(obs.Timestamp.Format("15:04:05.000000"))
	b.WriteByte(' ')
	b.WriteString(obs.Protocol)
	b.WriteByte(' ')
	b.WriteString(endpoint(obs.SrcIP, obs.SrcPort))
	b.WriteString(" -> ")
	b.WriteString(endpoint(obs.DstIP, obs.DstPort))
	if obs.Flags != "" {
		b.WriteString(" flags=")
		b.WriteString(obs.Flags)
	}
	fmt.Fprintf(&b, " len=%d", obs.Length)
	return b.String()
}

func endpoint(ip string, port *uint16) string {
	if port == nil {
		return ip
	}
	return fmt.Sprintf("%s:%d", ip, *port)
}

// Fields flattens obs into logger fields. Absent ports are omitted and the
// timestamp is rendered in RFC 3339 with microseconds.
func Fields(obs observation.Observation) (map[string]interface{}, error) {
	fields := make(map[string]interface{})
	if err := mapstructure.Decode(obs, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten observation: %w", err)
	}

	fields["timestamp"] = obs.Timestamp.Format("2006-01-02T15:04:05.000000Z07:00")
	for _, key := range []string{"src_port", "dst_port"} {
		switch p := fields[key].(type) {
		case *uint16:
			if p == nil {
				delete(fields, key)
			} else {
				fields[key] = *p
			}
		case nil:
			delete(fields, key)
		}
	}
	if obs.Flags == "" {
		delete(fields, "flags")
	}
	return fields, nil
}

// FormatMultiLine renders data as \xNN escapes split into lines of
// size-len(prefix) characters, each starting with prefix.
func FormatMultiLine(prefix string, data []byte, size int) string {
	if len(data) == 0 {
		return ""
	}

	size -= len(prefix)
	if size%2 != 0 {
		size--
	}
	if size < 4 {
		size = 4
	}

	var escaped strings.Builder
	escaped.Grow(len(data) * 4)
	for _, b := range data {
		fmt.Fprintf(&escaped, `\x%02x`, b)
	}
	text := escaped.String()

	lines := make([]string, 0, len(text)/size+1)
	for len(text) > size {
		lines = append(lines, prefix+text[:size])
		text = text[size:]
	}
	lines = append(lines, prefix+text)
	return strings.Join(lines, "\n")
}
