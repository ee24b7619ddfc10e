package decoder

import (
	"bytes"
	"errors"
	"testing"

	"firestige.xyz/dissect/internal/core"
)

func TestDecodeUDP(t *testing.T) {
	data := []byte{
		0x13, 0x88, // Src Port: 5000
		0x13, 0x89, // Dst Port: 5001
		0x00, 0x0C, // Length: 12 bytes (8 header + 4 payload)
		0xBE, 0xEF, // Checksum
		0x01, 0x02, 0x03, 0x04, // Payload
	}

	udp, err := DecodeUDP(data)
	if err != nil {
		t.Fatalf("DecodeUDP failed: %v", err)
	}

	if udp.SrcPort != 5000 {
		t.Errorf("Expected SrcPort 5000, got %d", udp.SrcPort)
	}
	if udp.DstPort != 5001 {
		t.Errorf("Expected DstPort 5001, got %d", udp.DstPort)
	}
	if udp.Length != 12 {
		t.Errorf("Expected Length 12, got %d", udp.Length)
	}
	if udp.Checksum != 0xBEEF {
		t.Errorf("Expected Checksum 0xbeef, got 0x%04x", udp.Checksum)
	}
	if len(udp.Payload) != 4 {
		t.Errorf("Expected payload length 4, got %d", len(udp.Payload))
	}
}

func TestDecodeUDPIgnoresDeclaredLength(t *testing.T) {
	data := []byte{0x00, 0x35, 0x00, 0x35, 0xFF, 0xFF, 0x00, 0x00, 'h', 'i'}

	udp, err := DecodeUDP(data)
	if err != nil {
		t.Fatalf("DecodeUDP failed: %v", err)
	}
	if !bytes.Equal(udp.Payload, []byte("hi")) {
		t.Errorf("Expected payload %q, got %q", "hi", udp.Payload)
	}
}

func TestDecodeICMP(t *testing.T) {
	data := []byte{
		0x08,       // Type: echo request
		0x00,       // Code
		0xF7, 0xFF, // Checksum
		0x00, 0x01, 0x00, 0x01, // Identifier, sequence
	}

	icmp, err := DecodeICMP(data)
	if err != nil {
		t.Fatalf("DecodeICMP failed: %v", err)
	}
	if icmp.Type != 8 || icmp.Code != 0 {
		t.Errorf("Expected type 8 code 0, got type %d code %d", icmp.Type, icmp.Code)
	}
	if icmp.Checksum != 0xF7FF {
		t.Errorf("Expected checksum 0xf7ff, got 0x%04x", icmp.Checksum)
	}
	if len(icmp.Payload) != 4 {
		t.Errorf("Expected payload length 4, got %d", len(icmp.Payload))
	}
}

func TestDecodeTCP(t *testing.T) {
	data := []byte{
		0x13, 0x88, // Src Port: 5000
		0x13, 0x89, // Dst Port: 5001
		0x00, 0x00, 0x00, 0x01, // Seq Num: 1
		0x00, 0x00, 0x00, 0x02, // Ack Num: 2
		0x50,       // Data Offset: 5 (20 bytes)
		0x18,       // Flags: ACK + PSH
		0x20, 0x00, // Window Size
		0x00, 0x00, // Checksum
		0x00, 0x00, // Urgent Pointer
		0x01, 0x02, 0x03, 0x04, // Payload
	}

	tcp, err := DecodeTCP(data)
	if err != nil {
		t.Fatalf("DecodeTCP failed: %v", err)
	}

	if tcp.SrcPort != 5000 || tcp.DstPort != 5001 {
		t.Errorf("Expected ports 5000->5001, got %d->%d", tcp.SrcPort, tcp.DstPort)
	}
	if tcp.Seq != 1 {
		t.Errorf("Expected Seq 1, got %d", tcp.Seq)
	}
	if tcp.Ack != 2 {
		t.Errorf("Expected Ack 2, got %d", tcp.Ack)
	}
	if tcp.DataOffset != 20 {
		t.Errorf("Expected DataOffset 20, got %d", tcp.DataOffset)
	}
	if !tcp.ACK || !tcp.PSH || tcp.SYN || tcp.FIN || tcp.RST || tcp.URG {
		t.Errorf("Expected only ACK+PSH, got %s", tcp.Flags())
	}
	if !bytes.Equal(tcp.Payload, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("Expected payload 01020304, got %x", tcp.Payload)
	}
}

func TestDecodeTCPFlagBits(t *testing.T) {
	data := make([]byte, 20)
	data[12] = 0x50

	for bits := 0; bits < 64; bits++ {
		// Reserved/ECN bits must not leak into the six classic flags.
		data[13] = byte(bits) | 0xC0

		tcp, err := DecodeTCP(data)
		if err != nil {
			t.Fatalf("DecodeTCP failed: %v", err)
		}

		want := map[string]bool{
			"URG": bits&0x20 != 0,
			"ACK": bits&0x10 != 0,
			"PSH": bits&0x08 != 0,
			"RST": bits&0x04 != 0,
			"SYN": bits&0x02 != 0,
			"FIN": bits&0x01 != 0,
		}
		got := map[string]bool{
			"URG": tcp.URG,
			"ACK": tcp.ACK,
			"PSH": tcp.PSH,
			"RST": tcp.RST,
			"SYN": tcp.SYN,
			"FIN": tcp.FIN,
		}
		for name, w := range want {
			if got[name] != w {
				t.Errorf("bits %06b: %s = %v, want %v", bits, name, got[name], w)
			}
		}
		if uint8(tcp.Flags()) != uint8(bits) {
			t.Errorf("bits %06b: Flags() = %06b", bits, uint8(tcp.Flags()))
		}
	}
}

func TestDecodeTCPWithOptions(t *testing.T) {
	data := make([]byte, 32+3)
	data[12] = 0x80 // Data Offset: 8 (32 bytes)
	copy(data[32:], "abc")

	tcp, err := DecodeTCP(data)
	if err != nil {
		t.Fatalf("DecodeTCP failed: %v", err)
	}
	if tcp.DataOffset != 32 {
		t.Errorf("Expected DataOffset 32, got %d", tcp.DataOffset)
	}
	if string(tcp.Payload) != "abc" {
		t.Errorf("Expected payload abc, got %q", tcp.Payload)
	}
}

func TestDecodeTCPOffsetBeyondBuffer(t *testing.T) {
	// Only the 14-byte prefix, data offset claims 60 bytes.
	data := make([]byte, 14)
	data[12] = 0xF0
	data[13] = 0x02

	tcp, err := DecodeTCP(data)
	if err != nil {
		t.Fatalf("DecodeTCP should clamp malformed offsets, got %v", err)
	}
	if len(tcp.Payload) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(tcp.Payload))
	}
	if !tcp.SYN {
		t.Error("Expected SYN flag")
	}
}

func TestDecodeTransportTooShort(t *testing.T) {
	tests := []struct {
		name     string
		protocol uint8
		data     []byte
	}{
		{"tcp", 6, make([]byte, 13)},
		{"udp", 17, make([]byte, 7)},
		{"icmp", 1, make([]byte, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := DecodeTransport(tt.protocol, tt.data)
			if !errors.Is(err, core.ErrTruncatedFrame) {
				t.Errorf("DecodeTransport error = %v, want ErrTruncatedFrame", err)
			}
			if tr != nil {
				t.Errorf("DecodeTransport returned %T on error, want nil", tr)
			}
		})
	}
}

func TestDecodeTransportDispatch(t *testing.T) {
	data := make([]byte, 20)
	data[12] = 0x50

	tests := []struct {
		protocol uint8
		check    func(core.Transport) bool
	}{
		{1, func(tr core.Transport) bool { _, ok := tr.(*core.ICMPMessage); return ok }},
		{6, func(tr core.Transport) bool { _, ok := tr.(*core.TCPSegment); return ok }},
		{17, func(tr core.Transport) bool { _, ok := tr.(*core.UDPDatagram); return ok }},
	}

	for _, tt := range tests {
		tr, err := DecodeTransport(tt.protocol, data)
		if err != nil {
			t.Fatalf("DecodeTransport(%d) failed: %v", tt.protocol, err)
		}
		if !tt.check(tr) {
			t.Errorf("DecodeTransport(%d) returned %T", tt.protocol, tr)
		}
		if tr.Protocol() != tt.protocol {
			t.Errorf("Protocol() = %d, want %d", tr.Protocol(), tt.protocol)
		}
	}
}

func TestDecodeTransportUnsupported(t *testing.T) {
	data := []byte{0x00, 0x00, 0x08, 0x00, 0x45, 0x00}

	for _, protocol := range []uint8{0, 2, 47, 50, 132, 255} {
		tr, err := DecodeTransport(protocol, data)
		if err != nil {
			t.Fatalf("DecodeTransport(%d) failed: %v", protocol, err)
		}
		unknown, ok := tr.(*core.UnknownTransport)
		if !ok {
			t.Fatalf("DecodeTransport(%d) returned %T, want *core.UnknownTransport", protocol, tr)
		}
		if unknown.Proto != protocol {
			t.Errorf("Expected protocol %d, got %d", protocol, unknown.Proto)
		}
		if !bytes.Equal(unknown.Payload, data) {
			t.Errorf("Expected untouched payload %x, got %x", data, unknown.Payload)
		}
	}
}

func TestDecodeTransportUnknownShortBuffer(t *testing.T) {
	tr, err := DecodeTransport(47, nil)
	if err != nil {
		t.Fatalf("DecodeTransport failed on empty GRE payload: %v", err)
	}
	if len(tr.LayerPayload()) != 0 {
		t.Errorf("Expected empty payload, got %d bytes", len(tr.LayerPayload()))
	}
}

func BenchmarkDecodeUDP(b *testing.B) {
	data := []byte{
		0x13, 0x88, 0x13, 0x89,
		0x00, 0x08, 0x00, 0x00,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := DecodeUDP(data)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeTCP(b *testing.B) {
	data := make([]byte, 20)
	data[0], data[1] = 0x13, 0x88
	data[2], data[3] = 0x13, 0x89
	data[12] = 0x50

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := DecodeTCP(data)
		if err != nil {
			b.Fatal(err)
		}
	}
}
