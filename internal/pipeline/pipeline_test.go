package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/dissect/internal/core"
	"firestige.xyz/dissect/internal/core/decoder"
	"firestige.xyz/dissect/internal/observation"
	"firestige.xyz/dissect/internal/pcapfile"
)

// Mock implementations for testing

// MockSource replays a fixed list of frames, then returns err (io.EOF by default).
type MockSource struct {
	frames []core.RawFrame
	err    error
	next   int
}

func NewMockSource(frames ...core.RawFrame) *MockSource {
	return &MockSource{frames: frames, err: io.EOF}
}

func (m *MockSource) ReadFrame() (core.RawFrame, error) {
	if m.next >= len(m.frames) {
		return core.RawFrame{}, m.err
	}
	f := m.frames[m.next]
	m.next++
	return f, nil
}

// EndlessSource returns the same frame forever.
type EndlessSource struct {
	frame core.RawFrame
}

func (e *EndlessSource) ReadFrame() (core.RawFrame, error) {
	return e.frame, nil
}

// MockSink collects observations.
type MockSink struct {
	shouldFail bool
	mu         sync.Mutex
	received   []observation.Observation
}

func (m *MockSink) Send(obs observation.Observation, frame core.DecodedFrame) error {
	if m.shouldFail {
		return core.ErrIO
	}
	m.mu.Lock()
	m.received = append(m.received, obs)
	m.mu.Unlock()
	return nil
}

func (m *MockSink) Received() []observation.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]observation.Observation(nil), m.received...)
}

// MockRecorder stores the timestamps of recorded frames.
type MockRecorder struct {
	shouldFail bool
	stamps     []time.Time
}

func (m *MockRecorder) WritePacket(ts time.Time, frame []byte) error {
	if m.shouldFail {
		return core.ErrIO
	}
	m.stamps = append(m.stamps, ts)
	return nil
}

// protocolFilter matches IPv4 frames carrying proto.
type protocolFilter uint8

func (f protocolFilter) Match(frame []byte) bool {
	return len(frame) > 23 && frame[23] == byte(f)
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func buildFrame(t *testing.T, ts time.Time, l ...gopacket.SerializableLayer) core.RawFrame {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, l...); err != nil {
		t.Fatalf("serialize: %v", err)
	}
	data := buf.Bytes()
	return core.RawFrame{Data: data, Timestamp: ts, CaptureLen: uint32(len(data)), OrigLen: uint32(len(data))}
}

func ipv4Layers(proto layers.IPProtocol) (*layers.Ethernet, *layers.IPv4) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	return eth, ip
}

func tcpFrame(t *testing.T, ts time.Time) core.RawFrame {
	eth, ip := ipv4Layers(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, Window: 1024}
	tcp.SetNetworkLayerForChecksum(ip)
	return buildFrame(t, ts, eth, ip, tcp, gopacket.Payload([]byte("GET / HTTP/1.1\r\n\r\n")))
}

func udpFrame(t *testing.T, ts time.Time) core.RawFrame {
	eth, ip := ipv4Layers(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	udp.SetNetworkLayerForChecksum(ip)
	return buildFrame(t, ts, eth, ip, udp, gopacket.Payload([]byte("query-query-query")))
}

func arpFrame(t *testing.T, ts time.Time) core.RawFrame {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{10, 0, 0, 2},
	}
	return buildFrame(t, ts, eth, arp)
}

func TestPipelineRun(t *testing.T) {
	truncated := core.RawFrame{Data: make([]byte, 10), Timestamp: base.Add(3 * time.Second)}
	src := NewMockSource(
		tcpFrame(t, base),
		arpFrame(t, base.Add(time.Second)),
		udpFrame(t, base.Add(2*time.Second)),
		truncated,
	)
	sink := &MockSink{}

	p := New(Config{
		Source:  src,
		Decoder: decoder.NewStandardDecoder(decoder.Config{DecodePayload: true}),
		Sinks:   []Sink{sink},
	})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := p.Stats()
	want := Stats{Received: 4, Decoded: 3, DecodeErrors: 1, Skipped: 1, Reported: 2}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}

	got := sink.Received()
	if len(got) != 2 {
		t.Fatalf("sink received %d observations, want 2", len(got))
	}
	if got[0].Protocol != "TCP" || got[0].Flags != "SYN" || !got[0].Timestamp.Equal(base) {
		t.Errorf("first observation = %+v", got[0])
	}
	if got[1].Protocol != "UDP" || *got[1].DstPort != 53 {
		t.Errorf("second observation = %+v", got[1])
	}
}

func TestPipelineFilterAndRecorder(t *testing.T) {
	src := NewMockSource(
		tcpFrame(t, base),
		udpFrame(t, base.Add(time.Second)),
		tcpFrame(t, base.Add(2*time.Second)),
	)
	rec := &MockRecorder{}
	sink := &MockSink{}

	p := NewBuilder().
		WithSource(src).
		WithFilter(protocolFilter(core.ProtocolTCP)).
		WithRecorder(rec).
		WithSinks(sink).
		WithBufferSize(1).
		Build()

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := p.Stats()
	if stats.Filtered != 1 || stats.Recorded != 2 || stats.Reported != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
	if len(rec.stamps) != 2 || !rec.stamps[0].Equal(base) || !rec.stamps[1].Equal(base.Add(2*time.Second)) {
		t.Errorf("recorded timestamps = %v", rec.stamps)
	}
}

func TestPipelineRecorderFailure(t *testing.T) {
	sink := &MockSink{}
	rec := &MockRecorder{shouldFail: true}
	p := New(Config{
		Source:   NewMockSource(tcpFrame(t, base), udpFrame(t, base.Add(time.Second))),
		Recorder: rec,
		Sinks:    []Sink{sink},
	})
	err := p.Run(context.Background())
	if !errors.Is(err, core.ErrIO) {
		t.Fatalf("Run() error = %v, want ErrIO", err)
	}

	// Recording stops after the first failure; decoding does not.
	stats := p.Stats()
	if stats.RecordErrors != 1 || stats.Recorded != 0 || stats.Reported != 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

// flakySink fails only the write numbered failAt.
type flakySink struct {
	failAt int
	writes int
	buf    bytes.Buffer
}

func (s *flakySink) Write(b []byte) (int, error) {
	s.writes++
	if s.writes == s.failAt {
		return 0, errors.New("write interrupted")
	}
	return s.buf.Write(b)
}

func TestPipelineRecorderSinkFailsOnce(t *testing.T) {
	// writes: 1 global header, 2 first record header, 3 first record data
	out := &flakySink{failAt: 3}
	w, err := pcapfile.Open(out, pcapfile.LinkTypeEthernet)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	p := New(Config{
		Source:   NewMockSource(tcpFrame(t, base), udpFrame(t, base), tcpFrame(t, base)),
		Recorder: w,
		Sinks:    []Sink{&MockSink{}},
	})
	err = p.Run(context.Background())
	if !errors.Is(err, core.ErrIO) {
		t.Fatalf("Run() error = %v, want ErrIO", err)
	}

	stats := p.Stats()
	if stats.Recorded != 0 || stats.RecordErrors != 1 || stats.Reported != 3 {
		t.Errorf("Stats() = %+v", stats)
	}
	// The orphaned record header stays last in the file.
	if got, want := out.buf.Len(), pcapfile.FileHeaderLen+pcapfile.RecordHeaderLen; got != want {
		t.Errorf("capture length = %d, want %d", got, want)
	}
	if w.Count() != 0 {
		t.Errorf("Count() = %d, want 0", w.Count())
	}
}

func TestPipelineSinkFailure(t *testing.T) {
	failing := &MockSink{shouldFail: true}
	healthy := &MockSink{}

	p := New(Config{
		Source: NewMockSource(udpFrame(t, base)),
		Sinks:  []Sink{failing, healthy},
	})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := p.Stats().ReportErrors; got != 1 {
		t.Errorf("ReportErrors = %d, want 1", got)
	}
	if got := p.Stats().Reported; got != 1 {
		t.Errorf("Reported = %d, want 1", got)
	}
	if len(healthy.Received()) != 1 {
		t.Errorf("healthy sink received %d observations, want 1", len(healthy.Received()))
	}
}

func TestPipelineAllSinksFail(t *testing.T) {
	p := New(Config{
		Source: NewMockSource(udpFrame(t, base), tcpFrame(t, base)),
		Sinks:  []Sink{&MockSink{shouldFail: true}, &MockSink{shouldFail: true}},
	})
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stats := p.Stats()
	if stats.Reported != 0 || stats.ReportErrors != 4 {
		t.Errorf("Stats() = %+v, want Reported 0 and ReportErrors 4", stats)
	}
}

func TestPipelineSourceError(t *testing.T) {
	src := NewMockSource(udpFrame(t, base))
	src.err = core.ErrTruncatedFrame

	p := New(Config{Source: src, Sinks: []Sink{&MockSink{}}})
	err := p.Run(context.Background())
	if !errors.Is(err, core.ErrTruncatedFrame) {
		t.Fatalf("Run() error = %v, want ErrTruncatedFrame", err)
	}
	if got := p.Stats().Reported; got != 1 {
		t.Errorf("Reported = %d, want 1", got)
	}
}

func TestPipelineStop(t *testing.T) {
	p := New(Config{
		Source:     &EndlessSource{frame: udpFrame(t, base)},
		Sinks:      []Sink{&MockSink{}},
		BufferSize: 4,
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.Stats().Reported == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	done := make(chan error, 1)
	go func() { done <- p.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not return")
	}
	if p.Stats().Reported == 0 {
		t.Error("no frames reported before stop")
	}
}

func TestPipelineStartErrors(t *testing.T) {
	p := New(Config{})
	if err := p.Start(context.Background()); !errors.Is(err, core.ErrConfigInvalid) {
		t.Errorf("Start() without source error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}

	p = New(Config{Source: NewMockSource()})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if err := p.Wait(); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.Received.Add(3)
	m.Reported.Add(2)
	want := Stats{Received: 3, Reported: 2}
	if got := m.Snapshot(); got != want {
		t.Errorf("Snapshot() = %+v, want %+v", got, want)
	}
}
