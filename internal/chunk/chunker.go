package chunk

import (
	"fmt"
	"log/slog"
)

// Config sizes the sliding window. A character is a Unicode code point.
type Config struct {
	Size    int
	Overlap int
}

// DefaultConfig returns the 1000/200 window.
func DefaultConfig() Config {
	return Config{Size: DefaultSize, Overlap: DefaultOverlap}
}

// Validate checks 0 <= Overlap < Size.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.Size, c.Overlap)
	}
	return nil
}

// Chunker is a deterministic fixed-size sliding-window splitter.
//
// Windows advance by Size-Overlap characters and the loop stops at the first
// window reaching the end of the document, so every pair of consecutive
// chunks shares exactly Overlap characters and only the last chunk may be
// shorter than Size. Boundaries ignore words and sentences.
type Chunker struct {
	cfg Config
}

// New returns a Chunker for cfg.
func New(cfg Config) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{cfg: cfg}, nil
}

// Config returns the window configuration.
func (c *Chunker) Config() Config {
	return c.cfg
}

// Split chunks one document.
func (c *Chunker) Split(doc Document) []Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.cfg.Size - c.cfg.Overlap
	var chunks []Chunk
	for start := 0; ; start += stride {
		end := min(start+c.cfg.Size, len(runes))
		text := string(runes[start:end])
		chunks = append(chunks, Chunk{
			ID:       chunkID(doc.Source, start, text),
			Text:     text,
			Metadata: Metadata{Source: doc.Source},
			Index:    len(chunks),
			Start:    start,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// SplitAll chunks every document in order.
func (c *Chunker) SplitAll(docs []Document) []Chunk {
	var out []Chunk
	for _, d := range docs {
		chunks := c.Split(d)
		slog.Debug("chunked document",
			slog.String("file", d.Source),
			slog.Int("chars", len([]rune(d.Text))),
			slog.Int("chunks", len(chunks)))
		out = append(out, chunks...)
	}
	return out
}

// Reconstruct concatenates the chunks of a single document, dropping the
// overlap carried by every chunk after the first.
func Reconstruct(chunks []Chunk, overlap int) string {
	var out []rune
	for i, ch := range chunks {
		r := []rune(ch.Text)
		if i > 0 {
			r = r[min(overlap, len(r)):]
		}
		out = append(out, r...)
	}
	return string(out)
}
