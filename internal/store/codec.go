package store

import (
	"encoding/binary"
	"math"
)

// EncodeEmbedding packs a vector as little-endian float32 bytes.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding is the inverse of EncodeEmbedding. Trailing bytes that do
// not form a whole float32 are ignored.
func DecodeEmbedding(b []byte) []float32 {
	n := len(b) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
