// Package index is the in-memory Embedding Index (C3): a secondary,
// derived view over all active identities' embeddings, rebuilt from the
// Identity Store on startup and kept hot by the Matcher.
package index

import (
	"time"

	"github.com/watchtower-nvr/core/embedding"
)

// Candidate is one scored result from Nearest.
type Candidate struct {
	IdentityID  string
	Distance    float64
	FirstSeenAt time.Time
}

// Index is the contract shared by the flat/exact family and any
// approximate family; consumers depend on this interface rather than a
// concrete implementation so the family can be swapped by identity count
// (Settings.ann_threshold) without touching the Matcher.
type Index interface {
	// Add inserts the vector for id, or overwrites it in place if id is
	// already present — this is the index's sole replace(id, emb)
	// operation (spec.md §4.3); there is no separate Replace method.
	// Mutations must appear atomic to concurrent readers of Nearest.
	Add(id string, emb embedding.Embedding, firstSeenAt time.Time)
	// Remove deletes id from the index, if present.
	Remove(id string)
	// Nearest returns up to k candidates within maxDistance of query,
	// ordered nearest-first. Ties are broken by earliest FirstSeenAt,
	// then lexicographically smaller IdentityID, so results are
	// deterministic across runs and implementations.
	Nearest(query embedding.Embedding, k int, maxDistance float64) []Candidate
	// Len returns the number of vectors currently held.
	Len() int
}
