package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairBlock(n int) *block {
	b := &block{Fingerprint: "96:1.0:0.5", Arity: 2}
	for i := 0; i < n; i++ {
		b.Sites = append(b.Sites, 0, i)
		b.Values = append(b.Values, math.Cos(float64(i))/float64(i+1))
	}
	return b
}

func TestBlockEncoding(t *testing.T) {
	c, err := NewCompressor(3)
	require.NoError(t, err)
	defer c.Close()

	tests := []struct {
		name  string
		block *block
	}{
		{"pairs", pairBlock(96)},
		{"single", &block{Fingerprint: "", Arity: 1, Sites: []int{5}, Values: []float64{-0.5}}},
		{"empty", &block{Fingerprint: "x", Arity: 3}},
		{"unordered sites", &block{
			Fingerprint: "L",
			Arity:       1,
			Sites:       []int{7, 2, 30, 0, 1},
			Values:      []float64{0, math.Inf(1), -1e-300, math.MaxFloat64, 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.EncodeBlock(tt.block)
			require.NoError(t, err)

			got, err := c.DecodeBlock(data)
			require.NoError(t, err)
			assert.Equal(t, tt.block.Fingerprint, got.Fingerprint)
			assert.Equal(t, tt.block.Arity, got.Arity)
			assert.Equal(t, tt.block.Count(), got.Count())
			if len(tt.block.Sites) > 0 {
				assert.Equal(t, tt.block.Sites, got.Sites)
				assert.Equal(t, tt.block.Values, got.Values)
			}
		})
	}
}

func TestBlockEncodingRejectsBadShape(t *testing.T) {
	c, err := NewCompressor(1)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.EncodeBlock(&block{Arity: 0})
	assert.Error(t, err)

	_, err = c.EncodeBlock(&block{Arity: 2, Sites: []int{1}, Values: []float64{1}})
	assert.Error(t, err)

	_, err = c.DecodeBlock([]byte("not zstd"))
	assert.Error(t, err)
}

func TestCompressionLevels(t *testing.T) {
	b := pairBlock(1000)
	raw := len(b.Sites)*8 + len(b.Values)*8

	for level := 1; level <= 4; level++ {
		c, err := NewCompressor(level)
		require.NoError(t, err)

		data, err := c.EncodeBlock(b)
		require.NoError(t, err)
		assert.Less(t, len(data), raw, "level %d", level)

		got, err := c.DecodeBlock(data)
		require.NoError(t, err)
		assert.Equal(t, b.Values, got.Values)
		c.Close()
	}
}

func BenchmarkEncodeBlock(b *testing.B) {
	c, _ := NewCompressor(3)
	defer c.Close()
	blk := pairBlock(1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.EncodeBlock(blk)
	}
}

func BenchmarkDecodeBlock(b *testing.B) {
	c, _ := NewCompressor(3)
	defer c.Close()
	data, _ := c.EncodeBlock(pairBlock(1000))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.DecodeBlock(data)
	}
}
