// Package annindex documents the swap point for a graph-based
// approximate nearest-neighbor Embedding Index (spec.md §4.3 family b),
// selected once the identity count crosses Settings.ann_threshold
// (default 2000).
//
// No concrete implementation is wired here: no ANN library appeared
// anywhere in the retrieved example corpus with a fetchable module path
// (the one candidate found, goannoy, vendors its bindings behind a
// local replace directive rather than a real published module — see
// DESIGN.md). A future implementation only needs to satisfy
// index.Index; index.Flat remains correct, if progressively more
// expensive, in the meantime.
package annindex

import "github.com/watchtower-nvr/core/index"

// New is the seam a real ANN-backed index would fill in. It currently
// always returns index.NewFlat, so wiring this package today is a
// no-op that documents intent rather than changing behavior.
func New(annThreshold int) index.Index {
	return index.NewFlat(annThreshold, nil)
}
