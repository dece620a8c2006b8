package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// LocalEmbedder is the fallback embedding provider: a deterministic
// hashed bag-of-words projection computed without any network call.
// Quality is far below a provider model, but it keeps retrieval alive
// during an embedding-provider outage and serves as the test embedder.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a local embedder producing vectors of the given
// dimension (0 uses VectorDimension).
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = VectorDimension
	}
	return &LocalEmbedder{dim: dim}
}

// Embed hashes each token into a bucket with a sign bit and L2-normalizes
// the accumulated vector. Identical text always yields identical vectors.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(token))
		bucket := int(binary.BigEndian.Uint32(sum[:4])) % e.dim
		if sum[4]&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}
