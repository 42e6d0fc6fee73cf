package bridge

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// Compressor ... Transform applied to items on their way to and from the remote.
// The bridge calls BeforePut once per outgoing item and AfterGet once per
// fetched item
type Compressor interface {
	BeforePut(item *Item) error
	AfterGet(item *Item) error
	Name() string
}

// NopCompressor ... Leaves payloads untouched
type NopCompressor struct{}

func (NopCompressor) BeforePut(*Item) error { return nil }

func (NopCompressor) AfterGet(item *Item) error {
	if item.Compressed {
		return fmt.Errorf("item %q is compressed but compression is disabled", item.Key)
	}
	return nil
}

func (NopCompressor) Name() string { return "none" }

// GzipCompressor ... Deflates payloads of at least Threshold bytes
type GzipCompressor struct {
	Threshold int
	Level     int
}

func NewGzipCompressor(threshold, level int) (*GzipCompressor, error) {
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid gzip level %d", level)
	}
	return &GzipCompressor{Threshold: threshold, Level: level}, nil
}

func (g *GzipCompressor) BeforePut(item *Item) error {
	if item.Compressed || len(item.Data) < g.Threshold {
		return nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return err
	}
	if _, err := w.Write(item.Data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	// not worth it, keep the raw bytes
	if buf.Len() >= len(item.Data) {
		return nil
	}

	item.Data = buf.Bytes()
	item.Compressed = true
	return nil
}

func (g *GzipCompressor) AfterGet(item *Item) error {
	if !item.Compressed {
		return nil
	}

	r, err := gzip.NewReader(bytes.NewReader(item.Data))
	if err != nil {
		return fmt.Errorf("inflate %q: %w", item.Key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("inflate %q: %w", item.Key, err)
	}

	item.Data = data
	item.Compressed = false
	return nil
}

func (g *GzipCompressor) Name() string { return "gzip" }
