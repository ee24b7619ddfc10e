package pipeline

import (
	"firestige.xyz/dissect/internal/core/decoder"
)

// Builder provides a fluent interface for building pipelines.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			BufferSize: 1024,
		},
	}
}

// WithSource sets the frame source.
func (b *Builder) WithSource(s Source) *Builder {
	b.config.Source = s
	return b
}

// WithDecoder sets the dissector chain.
func (b *Builder) WithDecoder(d decoder.Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithFilter sets the frame filter. A nil filter passes every frame.
func (b *Builder) WithFilter(f Filter) *Builder {
	b.config.Filter = f
	return b
}

// WithRecorder sets where passing frames are re-recorded.
func (b *Builder) WithRecorder(r Recorder) *Builder {
	b.config.Recorder = r
	return b
}

// WithSinks sets the sink chain.
func (b *Builder) WithSinks(sinks ...Sink) *Builder {
	b.config.Sinks = sinks
	return b
}

// WithBufferSize sets the frame channel buffer size.
func (b *Builder) WithBufferSize(size int) *Builder {
	b.config.BufferSize = size
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
