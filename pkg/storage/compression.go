package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
)

// block is the unit written to badger: every sample of one observable
// from one inserted file.
type block struct {
	Fingerprint string
	Arity       int
	// Sites is the row-major flattening of Count tuples of Arity sites.
	Sites  []int
	Values []float64
}

// Count returns the number of samples in the block.
func (b *block) Count() int { return len(b.Values) }

// Compressor encodes blocks: sites are delta-of-delta varints, values are
// XORed with their predecessor, and the result is zstd compressed.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a compressor for level 1 (fastest) to 4 (best).
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// EncodeBlock serializes and compresses b.
func (c *Compressor) EncodeBlock(b *block) ([]byte, error) {
	if b.Arity <= 0 {
		return nil, fmt.Errorf("block arity must be positive, got %d", b.Arity)
	}
	if len(b.Sites) != b.Arity*b.Count() {
		return nil, fmt.Errorf("block has %d sites for %d samples of arity %d", len(b.Sites), b.Count(), b.Arity)
	}

	buf := make([]byte, 0, 16+len(b.Fingerprint)+len(b.Sites)*2+len(b.Values)*8)
	buf = binary.AppendUvarint(buf, uint64(len(b.Fingerprint)))
	buf = append(buf, b.Fingerprint...)
	buf = binary.AppendUvarint(buf, uint64(b.Arity))
	buf = binary.AppendUvarint(buf, uint64(b.Count()))
	buf = appendSites(buf, b.Sites)
	buf = appendValues(buf, b.Values)

	return c.encoder.EncodeAll(buf, make([]byte, 0, len(buf))), nil
}

// DecodeBlock reverses EncodeBlock.
func (c *Compressor) DecodeBlock(data []byte) (*block, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	r := bytes.NewReader(raw)

	fpLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read fingerprint length: %w", err)
	}
	fp := make([]byte, fpLen)
	if _, err := io.ReadFull(r, fp); err != nil {
		return nil, fmt.Errorf("failed to read fingerprint: %w", err)
	}
	arity, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read arity: %w", err)
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read count: %w", err)
	}

	sites, err := readSites(r, int(arity*count))
	if err != nil {
		return nil, err
	}
	values, err := readValues(r, int(count))
	if err != nil {
		return nil, err
	}

	return &block{
		Fingerprint: string(fp),
		Arity:       int(arity),
		Sites:       sites,
		Values:      values,
	}, nil
}

// appendSites writes the first site followed by delta-of-delta varints.
// Site lists from estimator files are mostly arithmetic progressions, so
// most entries are zero.
func appendSites(buf []byte, sites []int) []byte {
	var prev, prevDelta int64
	for i, s := range sites {
		v := int64(s)
		if i == 0 {
			buf = binary.AppendVarint(buf, v)
		} else {
			delta := v - prev
			buf = binary.AppendVarint(buf, delta-prevDelta)
			prevDelta = delta
		}
		prev = v
	}
	return buf
}

func readSites(r io.ByteReader, n int) ([]int, error) {
	sites := make([]int, n)
	var prev, prevDelta int64
	for i := 0; i < n; i++ {
		v, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read site %d: %w", i, err)
		}
		if i > 0 {
			delta := v + prevDelta
			v = prev + delta
			prevDelta = delta
		}
		sites[i] = int(v)
		prev = v
	}
	return sites, nil
}

// appendValues writes each float's bits XORed with the previous one.
func appendValues(buf []byte, values []float64) []byte {
	var prevBits uint64
	for _, v := range values {
		bits := math.Float64bits(v)
		buf = binary.AppendUvarint(buf, bits^prevBits)
		prevBits = bits
	}
	return buf
}

func readValues(r io.ByteReader, n int) ([]float64, error) {
	values := make([]float64, n)
	var prevBits uint64
	for i := 0; i < n; i++ {
		x, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read value %d: %w", i, err)
		}
		bits := x ^ prevBits
		values[i] = math.Float64frombits(bits)
		prevBits = bits
	}
	return values, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}
