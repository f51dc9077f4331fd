// Package embedder is the Embedder (C6): turns an aligned face crop
// into a fixed-dimension Embedding (C1).
package embedder

import (
	"errors"

	"gocv.io/x/gocv"

	"github.com/watchtower-nvr/core/detect"
	"github.com/watchtower-nvr/core/embedding"
)

// ErrUnavailable is returned when the embedding model failed to load.
// Per spec.md §4.6 this is fatal for the pipeline task that hits it.
var ErrUnavailable = errors.New("embedder: model unavailable")

// Embedder turns a face crop (with optional detector-supplied
// landmarks for alignment) into an Embedding.
type Embedder interface {
	// Embed aligns crop using landmarks when present (falling back to
	// a plain resize otherwise), normalizes it to the model's expected
	// geometry, and returns its Embedding.
	Embed(crop gocv.Mat, landmarks []detect.Point2D) (embedding.Embedding, error)
	// EmbedBatch is the batched form (B_max default 8 CPU / 64 GPU per
	// spec.md §4.6); callers coalescing across cameras use this to fill
	// a batch within the coalescing window.
	EmbedBatch(crops []gocv.Mat, landmarks [][]detect.Point2D) ([]embedding.Embedding, error)
	Close() error
}
