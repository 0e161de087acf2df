package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// DefaultChunkConcurrency bounds parallel chunk requests.
const DefaultChunkConcurrency = 3

// Chunked implements Provider by splitting long text on the client and
// synthesizing the pieces in parallel through an inner provider. Audio is
// joined in chunk order.
type Chunked struct {
	inner       Provider
	chunker     *Chunker
	concurrency int
	logger      *slog.Logger
}

// NewChunked wraps inner. concurrency <= 0 uses DefaultChunkConcurrency.
func NewChunked(inner Provider, chunker *Chunker, concurrency int, logger *slog.Logger) *Chunked {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize)
	}
	if concurrency <= 0 {
		concurrency = DefaultChunkConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunked{
		inner:       inner,
		chunker:     chunker,
		concurrency: concurrency,
		logger:      logger.With("component", "tts.chunked"),
	}
}

// Synthesize passes short text straight through to the inner provider.
func (c *Chunked) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	return c.inner.Synthesize(ctx, req)
}

// SynthesizeChunked splits req.Text and synthesizes every chunk. Any chunk
// failure fails the whole call.
func (c *Chunked) SynthesizeChunked(ctx context.Context, req Request) (*AudioResult, error) {
	chunks := c.chunker.Split(req.Text)
	if len(chunks) == 0 {
		return nil, ErrEmptyText
	}
	if len(chunks) == 1 {
		return c.inner.Synthesize(ctx, req)
	}

	start := time.Now()
	parts := make([][]byte, len(chunks))

	p := pool.New().
		WithMaxGoroutines(c.concurrency).
		WithErrors().
		WithContext(ctx).
		WithCancelOnError()

	for _, ch := range chunks {
		p.Go(func(ctx context.Context) error {
			sub := req
			sub.Text = ch.Text
			res, err := c.inner.Synthesize(ctx, sub)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", ch.Index, err)
			}
			parts[ch.Index] = res.Audio
			chunksSynthesized.Add(ctx, 1)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	audio := bytes.Join(parts, nil)
	latency := time.Since(start).Milliseconds()

	c.logger.Debug("synthesized chunked audio",
		"chars", len(req.Text),
		"chunks", len(chunks),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:      audio,
		ChunkCount: len(chunks),
		CharCount:  len(req.Text),
		LatencyMs:  latency,
	}, nil
}

// Health checks the inner provider.
func (c *Chunked) Health(ctx context.Context) error {
	return c.inner.Health(ctx)
}

// Settings forwards to the inner provider when it reports settings.
func (c *Chunked) Settings(ctx context.Context) (Settings, error) {
	src, ok := c.inner.(SettingsSource)
	if !ok {
		return DefaultSettings(), nil
	}
	return src.Settings(ctx)
}

// Close closes the inner provider.
func (c *Chunked) Close() error {
	return c.inner.Close()
}

var (
	_ Provider       = (*Chunked)(nil)
	_ SettingsSource = (*Chunked)(nil)
)
