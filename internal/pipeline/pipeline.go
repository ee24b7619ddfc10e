// Package pipeline runs frames from a source through filter, recorder,
// dissector chain and sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"firestige.xyz/dissect/internal/core"
	"firestige.xyz/dissect/internal/core/decoder"
	"firestige.xyz/dissect/internal/log"
	"firestige.xyz/dissect/internal/observation"
)

// Source yields raw frames until io.EOF.
type Source interface {
	ReadFrame() (core.RawFrame, error)
}

// Filter selects frames before they are recorded or decoded.
type Filter interface {
	Match(frame []byte) bool
}

// Recorder stores frames that passed the filter, keeping their timestamps.
type Recorder interface {
	WritePacket(ts time.Time, frame []byte) error
}

// Sink receives one observation per dissected frame.
type Sink interface {
	Send(obs observation.Observation, frame core.DecodedFrame) error
}

// Pipeline is a single-reader, single-processor frame chain.
type Pipeline struct {
	source   Source
	decoder  decoder.Decoder
	filter   Filter
	recorder Recorder
	sinks    []Sink
	metrics  *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	frames chan core.RawFrame

	errMu sync.Mutex
	err   error
}

// Config contains pipeline configuration. Filter and Recorder are optional.
type Config struct {
	Source     Source
	Decoder    decoder.Decoder
	Filter     Filter
	Recorder   Recorder
	Sinks      []Sink
	BufferSize int // Frame channel buffer size
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.Decoder == nil {
		cfg.Decoder = decoder.NewStandardDecoder(decoder.Config{DecodePayload: true})
	}

	return &Pipeline{
		source:   cfg.Source,
		decoder:  cfg.Decoder,
		filter:   cfg.Filter,
		recorder: cfg.Recorder,
		sinks:    cfg.Sinks,
		metrics:  NewMetrics(),
		frames:   make(chan core.RawFrame, cfg.BufferSize),
	}
}

// Start launches the read and process loops. They stop at the end of the
// source or when ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) error {
	if p.source == nil {
		return fmt.Errorf("%w: pipeline has no source", core.ErrConfigInvalid)
	}
	if p.ctx != nil {
		return fmt.Errorf("pipeline already started")
	}
	log.GetLogger().Debug("pipeline starting")

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.captureLoop()

	p.wg.Add(1)
	go p.processLoop()

	return nil
}

// Wait blocks until both loops exit and returns the first source error.
// Reaching the end of the source is not an error.
func (p *Pipeline) Wait() error {
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}

	s := p.Stats()
	log.GetLogger().WithFields(map[string]interface{}{
		"received":      s.Received,
		"filtered":      s.Filtered,
		"decoded":       s.Decoded,
		"decode_errors": s.DecodeErrors,
		"reported":      s.Reported,
	}).Info("pipeline finished")

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Stop cancels processing and waits for the loops to exit.
func (p *Pipeline) Stop() error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return p.Wait()
}

// Run starts the pipeline and waits for it to drain the source.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Start(ctx); err != nil {
		return err
	}
	return p.Wait()
}

func (p *Pipeline) setErr(err error) {
	p.errMu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.errMu.Unlock()
}

// captureLoop reads frames from the source and hands them to processLoop.
func (p *Pipeline) captureLoop() {
	defer p.wg.Done()
	defer close(p.frames)

	for {
		raw, err := p.source.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && p.ctx.Err() == nil {
				log.GetLogger().WithError(err).Error("frame source failed")
				p.setErr(err)
			}
			return
		}

		select {
		case <-p.ctx.Done():
			return
		case p.frames <- raw:
		}
	}
}

// processLoop is the main processing loop.
func (p *Pipeline) processLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return

		case raw, ok := <-p.frames:
			if !ok {
				return
			}

			p.metrics.Received.Add(1)

			if err := p.processFrame(raw); err != nil {
				log.GetLogger().WithField("frame", p.metrics.Received.Load()).WithError(err).Debug("frame processing failed")
			}
		}
	}
}

// processFrame runs one frame through the chain. Decode failures drop the
// frame; sink failures are counted and do not stop the remaining sinks.
// The first recorder failure stops recording for the rest of the run and
// becomes the run's error; decoding continues.
func (p *Pipeline) processFrame(raw core.RawFrame) error {
	if p.filter != nil && !p.filter.Match(raw.Data) {
		p.metrics.Filtered.Add(1)
		return nil
	}

	if p.recorder != nil {
		if err := p.recorder.WritePacket(raw.Timestamp, raw.Data); err != nil {
			p.metrics.RecordErrors.Add(1)
			log.GetLogger().WithError(err).Error("recording frame failed, recording stopped")
			p.recorder = nil
			p.setErr(fmt.Errorf("recording stopped: %w", err))
		} else {
			p.metrics.Recorded.Add(1)
		}
	}

	frame, err := p.decoder.Decode(raw.Data)
	if err != nil {
		p.metrics.DecodeErrors.Add(1)
		return fmt.Errorf("decode failed: %w", err)
	}
	p.metrics.Decoded.Add(1)

	obs, ok := observation.FromFrame(frame, raw.Timestamp)
	if !ok {
		p.metrics.Skipped.Add(1)
		return nil
	}

	delivered := false
	for _, sink := range p.sinks {
		if err := sink.Send(obs, frame); err != nil {
			p.metrics.ReportErrors.Add(1)
			log.GetLogger().WithError(err).Error("sink failed")
			continue
		}
		delivered = true
	}
	if delivered {
		p.metrics.Reported.Add(1)
	}

	return nil
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return p.metrics.Snapshot()
}
