package console

import (
	"fmt"
	"io"
	"strings"

	"firestige.xyz/dissect/internal/core"
)

const (
	tab1 = "\t - "
	tab2 = "\t\t - "
	tab3 = "\t\t\t - "
	tab4 = "\t\t\t\t - "

	dataTab1 = "\t   "
	dataTab2 = "\t\t   "
	dataTab3 = "\t\t\t   "
)

// WriteLayers prints every decoded layer of frame as an indented tree.
// Payload bytes are hex-wrapped to width.
func WriteLayers(w io.Writer, frame core.DecodedFrame, width int) error {
	if width <= 0 {
		width = defaultWidth
	}

	var b strings.Builder
	eth := frame.Ethernet
	b.WriteString("Ethernet Frame:\n")
	fmt.Fprintf(&b, "%sDestination: %s, Source: %s, Protocol: 0x%04x\n", tab1, eth.DstMAC, eth.SrcMAC, eth.EtherType)

	if ip := frame.IPv4; ip != nil {
		fmt.Fprintf(&b, "%sIPv4 Packet:\n", tab1)
		fmt.Fprintf(&b, "%sVersion: %d, Header Length: %d, TTL: %d\n", tab2, ip.Version, ip.HeaderLen, ip.TTL)
		fmt.Fprintf(&b, "%sProtocol: %d, Source: %s, Target: %s\n", tab2, ip.Protocol, ip.SrcIP, ip.DstIP)
	} else if len(eth.Payload) > 0 {
		fmt.Fprintf(&b, "%sData:\n", tab1)
		writeData(&b, dataTab1, eth.Payload, width)
	}

	switch t := frame.Transport.(type) {
	case *core.TCPSegment:
		fmt.Fprintf(&b, "%sTCP Segment:\n", tab1)
		fmt.Fprintf(&b, "%sSource Port: %d, Destination Port: %d\n", tab2, t.SrcPort, t.DstPort)
		fmt.Fprintf(&b, "%sSequence: %d, Acknowledgment: %d\n", tab2, t.Seq, t.Ack)
		fmt.Fprintf(&b, "%sFlags:\n", tab2)
		fmt.Fprintf(&b, "%sURG: %d, ACK: %d, PSH: %d\n", tab3, bit(t.URG), bit(t.ACK), bit(t.PSH))
		fmt.Fprintf(&b, "%sRST: %d, SYN: %d, FIN: %d\n", tab3, bit(t.RST), bit(t.SYN), bit(t.FIN))
		writeApplication(&b, frame, t.Payload, width)
	case *core.UDPDatagram:
		fmt.Fprintf(&b, "%sUDP Segment:\n", tab1)
		fmt.Fprintf(&b, "%sSource Port: %d, Destination Port: %d, Length: %d\n", tab2, t.SrcPort, t.DstPort, t.Length)
		writeApplication(&b, frame, t.Payload, width)
	case *core.ICMPMessage:
		fmt.Fprintf(&b, "%sICMP Packet:\n", tab1)
		fmt.Fprintf(&b, "%sType: %d, Code: %d, Checksum: %d\n", tab2, t.Type, t.Code, t.Checksum)
		if len(t.Payload) > 0 {
			fmt.Fprintf(&b, "%sICMP Data:\n", tab2)
			writeData(&b, dataTab3, t.Payload, width)
		}
	case *core.UnknownTransport:
		fmt.Fprintf(&b, "%sOther IPv4 Data (protocol %d):\n", tab1, t.Proto)
		writeData(&b, dataTab2, t.Payload, width)
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("%w: console write: %w", core.ErrIO, err)
	}
	return nil
}

func writeApplication(b *strings.Builder, frame core.DecodedFrame, payload []byte, width int) {
	if len(payload) == 0 {
		return
	}
	if app := frame.Application; app != nil && !app.Binary {
		fmt.Fprintf(b, "%sText:\n", tab2)
		for _, line := range strings.Split(strings.TrimRight(app.Text, "\r\n"), "\n") {
			b.WriteString(tab4)
			b.WriteString(strings.TrimRight(line, "\r"))
			b.WriteByte('\n')
		}
		return
	}
	fmt.Fprintf(b, "%sData:\n", tab2)
	writeData(b, dataTab3, payload, width)
}

func writeData(b *strings.Builder, prefix string, data []byte, width int) {
	if len(data) == 0 {
		return
	}
	b.WriteString(FormatMultiLine(prefix, data, width))
	b.WriteByte('\n')
}

func bit(set bool) int {
	if set {
		return 1
	}
	return 0
}
