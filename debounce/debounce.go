// Package debounce is the Sighting Debouncer (C8): it keeps the
// Matcher from writing a Sighting row (and incrementing an identity's
// sighting count) more than once per sighting_cooldown_secs for the
// same (identity, camera) pair, grounded on workers/image_worker.go's
// Pending-map-guarded-by-mutex idiom, generalized from a dedup set to a
// per-key last-seen timestamp with its own sweep goroutine.
package debounce

import (
	"context"
	"sync"
	"time"
)

// key identifies a (identity, camera) pair.
type key struct {
	identityID string
	cameraID   string
}

// Debouncer is memory-only; a process restart forgets all cooldowns.
type Debouncer struct {
	mu       sync.Mutex
	last     map[key]time.Time
	cooldown time.Duration
}

// New builds a Debouncer with the given cooldown (spec.md default 30s).
func New(cooldown time.Duration) *Debouncer {
	return &Debouncer{last: make(map[key]time.Time), cooldown: cooldown}
}

// SetCooldown updates the cooldown window; Settings are read fresh per
// call by the Matcher, so a live Settings update takes effect on the
// next Allow call.
func (d *Debouncer) SetCooldown(cooldown time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cooldown = cooldown
}

// Allow reports whether a Sighting should be written for
// (identityID, cameraID) at time "at". If it returns true, it also
// records "at" as the new last-sighting time for that pair, exactly as
// if the write had gone through. A caller that decides not to write
// despite an Allow=true response must not call it again for the same
// event since the state has already advanced.
func (d *Debouncer) Allow(identityID, cameraID string, at time.Time) bool {
	k := key{identityID: identityID, cameraID: cameraID}

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.last[k]; ok && at.Sub(last) < d.cooldown {
		return false
	}
	d.last[k] = at
	return true
}

// Prune runs on a slow timer (spec.md default every 5 minutes),
// evicting entries whose last sighting is older than the cooldown so
// the map does not grow unbounded across identity/camera churn.
func (d *Debouncer) Prune(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, last := range d.last {
		if now.Sub(last) >= d.cooldown {
			delete(d.last, k)
		}
	}
}

// RunPruneLoop blocks, calling Prune every interval until ctx is
// cancelled. Callers pass time.Now themselves via Prune's argument, so
// tests can drive Prune directly without waiting on a real clock.
func (d *Debouncer) RunPruneLoop(ctx context.Context, interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Prune(now())
		}
	}
}
