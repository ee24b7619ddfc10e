// Package pcapfile writes raw frames in the classic libpcap capture format.
package pcapfile

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"firestige.xyz/dissect/internal/core"
)

// Global header constants.
const (
	MagicNumber    uint32 = 0xa1b2c3d4
	VersionMajor   uint16 = 2
	VersionMinor   uint16 = 4
	DefaultSnapLen uint32 = 65535

	// LinkTypeEthernet is the DLT_EN10MB link-type code.
	LinkTypeEthernet uint32 = 1

	FileHeaderLen   = 24
	RecordHeaderLen = 16
)

// Writer appends frames to a capture file. It owns its sink exclusively
// from Open until Close; concurrent Write calls are serialized.
type Writer struct {
	mu     sync.Mutex
	sink   io.Writer
	order  binary.ByteOrder
	now    func() time.Time
	closed bool
	failed error
	count  uint64
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the wall clock used by Write.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// WithByteOrder overrides the header byte order. Defaults to host order.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(w *Writer) {
		w.order = order
	}
}

// Open writes the global header to sink and returns a Writer owning it.
// If sink is an io.Closer it is closed by Close, and also when the header
// write fails.
func Open(sink io.Writer, linkType uint32, opts ...Option) (*Writer, error) {
	w := &Writer{
		sink:  sink,
		order: binary.NativeEndian,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}

	var hdr [FileHeaderLen]byte
	w.order.PutUint32(hdr[0:4], MagicNumber)
	w.order.PutUint16(hdr[4:6], VersionMajor)
	w.order.PutUint16(hdr[6:8], VersionMinor)
	w.order.PutUint32(hdr[8:12], 0)  // thiszone
	w.order.PutUint32(hdr[12:16], 0) // sigfigs
	w.order.PutUint32(hdr[16:20], DefaultSnapLen)
	w.order.PutUint32(hdr[20:24], linkType)

	if _, err := sink.Write(hdr[:]); err != nil {
		w.release()
		return nil, fmt.Errorf("%w: file header: %w", core.ErrIO, err)
	}
	return w, nil
}

// Create creates (or truncates) path and opens a Writer on it.
func Create(path string, linkType uint32, opts ...Option) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", core.ErrIO, path, err)
	}
	return Open(f, linkType, opts...)
}

// Write appends frame stamped with the current time.
func (w *Writer) Write(frame []byte) error {
	return w.WritePacket(w.now(), frame)
}

// WriteContext is Write that gives up if ctx is done before the record is started.
// A record that has been started is always written in full or fails on the sink.
func (w *Writer) WriteContext(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.Write(frame)
}

// WritePacket appends frame with the given timestamp. Both length fields
// are set to len(frame); no snapshot truncation is applied.
// A sink failure after the record header leaves a trailing partial record.
// Once a record write has failed the writer refuses further records so the
// partial record stays last in the file; it should be closed and discarded.
func (w *Writer) WritePacket(ts time.Time, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return core.ErrClosedWriter
	}
	if w.failed != nil {
		return fmt.Errorf("%w: writer failed earlier: %w", core.ErrIO, w.failed)
	}

	var hdr [RecordHeaderLen]byte
	w.order.PutUint32(hdr[0:4], uint32(ts.Unix()))
	w.order.PutUint32(hdr[4:8], uint32(ts.Nanosecond()/int(time.Microsecond)))
	w.order.PutUint32(hdr[8:12], uint32(len(frame)))
	w.order.PutUint32(hdr[12:16], uint32(len(frame)))

	if _, err := w.sink.Write(hdr[:]); err != nil {
		w.failed = err
		return fmt.Errorf("%w: record header: %w", core.ErrIO, err)
	}
	if _, err := w.sink.Write(frame); err != nil {
		w.failed = err
		return fmt.Errorf("%w: record data: %w", core.ErrIO, err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close releases the sink. Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.release()
}

func (w *Writer) release() error {
	if c, ok := w.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("%w: close: %w", core.ErrIO, err)
		}
	}
	return nil
}
