package embeddings

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"math"
)

// emptySeedText seeds the generator when the input text is empty.
const emptySeedText = "42connect-vibes"

const (
	chunkModulus = 2_000_000
	chunkScale   = 1_000_000.0
)

// DeterministicModel returns the model tag stored alongside vectors from Deterministic.
func DeterministicModel(dim int) string {
	return fmt.Sprintf("fallback-sha512-%d", dim)
}

// Deterministic derives a unit-length vector of length dim from text alone, with no network access.
// The same text and dim always produce bit-identical output.
//
// Round r hashes seed||uint32_be(r) with SHA-512, where seed is SHA-512 of the text. Each 4-byte
// big-endian chunk v of the digest contributes ((v mod 2e6) / 1e6) - 1 until dim values exist.
// The result is L2-normalized in float64; a degenerate zero vector becomes e0.
func Deterministic(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}

	seedInput := []byte(text)
	if text == "" {
		seedInput = []byte(emptySeedText)
	}

	seed := sha512.Sum512(seedInput)
	values := make([]float64, 0, dim)

	block := make([]byte, len(seed)+4)
	copy(block, seed[:])

	for counter := uint32(0); len(values) < dim; counter++ {
		binary.BigEndian.PutUint32(block[len(seed):], counter)
		digest := sha512.Sum512(block)

		for offset := 0; offset+4 <= len(digest) && len(values) < dim; offset += 4 {
			v := binary.BigEndian.Uint32(digest[offset : offset+4])
			values = append(values, float64(v%chunkModulus)/chunkScale-1.0)
		}
	}

	var sumSquares float64
	for _, v := range values {
		sumSquares += v * v
	}

	out := make([]float32, dim)

	norm := math.Sqrt(sumSquares)
	if norm <= 0 {
		out[0] = 1

		return out
	}

	for i, v := range values {
		out[i] = float32(v / norm)
	}

	return out
}
