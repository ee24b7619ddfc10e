// Package file replays frames from a capture file written by pcapfile or any
// libpcap-compatible tool.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/dissect/internal/core"
	"firestige.xyz/dissect/internal/pcapfile"
)

// Source reads frames sequentially from a capture file.
type Source struct {
	path   string
	file   *os.File
	reader *pcapgo.Reader

	// size of the file on disk and bytes consumed by complete records.
	// size is -1 for gzip input, where the two cannot be compared.
	size     int64
	consumed int64
}


// NewSource creates a source for path. The file is opened by Start.
func NewSource(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: capture file path is required", core.ErrConfigInvalid)
	}
	return &Source{path: path}, nil
}

// Start opens the capture file and reads its global header.
func (s *Source) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", s.path, err)
	}

	size, err := plainSize(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat capture file %s: %w", s.path, err)
	}

	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to read capture header %s: %w", s.path, err)
	}

	s.file = f
	s.reader = r
	s.size = size
	s.consumed = pcapfile.FileHeaderLen
	return nil
}

// ReadFrame returns the next frame, or io.EOF after the last record.
func (s *Source) ReadFrame() (core.RawFrame, error) {
	if s.reader == nil {
		return core.RawFrame{}, fmt.Errorf("file source not started")
	}

	data, ci, err := s.reader.ReadPacketData()
	if err != nil {
		if errors.Is(err, io.EOF) {
			// A record header followed by no data at all also ends in io.EOF.
			if s.size > s.consumed {
				return core.RawFrame{}, fmt.Errorf("%w: %d trailing bytes after last record in %s",
					core.ErrTruncatedFrame, s.size-s.consumed, s.path)
			}
			return core.RawFrame{}, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return core.RawFrame{}, fmt.Errorf("%w: trailing partial record in %s", core.ErrTruncatedFrame, s.path)
		}
		return core.RawFrame{}, fmt.Errorf("failed to read frame: %w", err)
	}
	s.consumed += pcapfile.RecordHeaderLen + int64(len(data))

	return core.RawFrame{
		Data:       data,
		Timestamp:  ci.Timestamp,
		CaptureLen: uint32(ci.CaptureLength),
		OrigLen:    uint32(ci.Length),
	}, nil
}

// plainSize returns the size of f, or -1 when f is gzip compressed.
func plainSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	magic := make([]byte, 2)
	if n, _ := f.ReadAt(magic, 0); n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		return -1, nil
	}
	return info.Size(), nil
}

// LinkType returns the link type declared in the file header.
func (s *Source) LinkType() layers.LinkType {
	if s.reader == nil {
		return layers.LinkTypeEthernet // default
	}
	return s.reader.LinkType()
}

// Stop closes the file.
func (s *Source) Stop() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.reader = nil
	return err
}
