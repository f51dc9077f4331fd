package index

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/watchtower-nvr/core/embedding"
)

// entry is one vector held by Flat, keyed by identity id.
type entry struct {
	emb         embedding.Embedding
	firstSeenAt time.Time
}

// Flat is the exact/flat implementation of Index (spec.md §4.3 family
// a): a linear scan scored with cosine distance under a single
// sync.RWMutex, grounded on realtime.Hub's mutex-guarded map style
// generalized from subscriber fan-out to vector storage. Correct for
// any identity count; a warning is logged once AnnThreshold is crossed
// so operators know a graph-based index (index/annindex) would now pay
// for itself, though none is wired (see DESIGN.md).
type Flat struct {
	mu           sync.RWMutex
	vectors      map[string]entry
	annThreshold int
	warned       bool
	log          *zap.SugaredLogger
}

var _ Index = (*Flat)(nil)

// NewFlat constructs an empty Flat index. annThreshold is
// Settings.Detection's ann_threshold (default 2000); pass 0 to disable
// the crossing warning.
func NewFlat(annThreshold int, log *zap.SugaredLogger) *Flat {
	return &Flat{
		vectors:      make(map[string]entry),
		annThreshold: annThreshold,
		log:          log,
	}
}

func (f *Flat) Add(id string, emb embedding.Embedding, firstSeenAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors[id] = entry{emb: emb, firstSeenAt: firstSeenAt}
	f.maybeWarnLocked()
}

func (f *Flat) Remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, id)
}

func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

func (f *Flat) Nearest(query embedding.Embedding, k int, maxDistance float64) []Candidate {
	f.mu.RLock()
	defer f.mu.RUnlock()

	candidates := make([]Candidate, 0, len(f.vectors))
	for id, e := range f.vectors {
		d := embedding.Cosine(query, e.emb)
		if d > maxDistance {
			continue
		}
		candidates = append(candidates, Candidate{
			IdentityID:  id,
			Distance:    d,
			FirstSeenAt: e.firstSeenAt,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		if !candidates[i].FirstSeenAt.Equal(candidates[j].FirstSeenAt) {
			return candidates[i].FirstSeenAt.Before(candidates[j].FirstSeenAt)
		}
		return candidates[i].IdentityID < candidates[j].IdentityID
	})

	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// maybeWarnLocked logs once, under f.mu, the first time the vector count
// crosses annThreshold. Callers must hold f.mu for writing.
func (f *Flat) maybeWarnLocked() {
	if f.warned || f.annThreshold <= 0 || f.log == nil {
		return
	}
	if len(f.vectors) >= f.annThreshold {
		f.warned = true
		f.log.Warnw("embedding index has crossed the ANN threshold; flat scan is now the dominant matcher cost",
			"count", len(f.vectors), "ann_threshold", f.annThreshold)
	}
}
