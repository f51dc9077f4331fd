// Package objectstore is the injected capability (spec.md §6) that owns
// snapshot and recording segment bytes on behalf of the core. Keys are
// caller-derived slash-separated paths, e.g.
// "snapshots/<camera_id>/<random uuid>.jpg" (the Matcher's snapshot
// key, which carries neither the identity id nor the sighting id) or
// "recordings/2026/08/06/<camera_id>/<started_at, UTC ISO 8601 basic>.avi".
package objectstore

import "io"

// Store is the object storage contract required by the Matcher (C7),
// Recording Controller (C9), and Storage Janitor (C11).
type Store interface {
	// Put writes data under key, replacing any existing object, and
	// returns the ref that callers should persist (identities.thumbnail,
	// sightings.snapshot_ref, recordings.file_ref).
	Put(key string, data []byte) (ref string, err error)
	// OpenForAppend returns a WriteCloser for key, creating parent
	// directories as needed, for the Recording Controller's streaming
	// segment writer.
	OpenForAppend(key string) (io.WriteCloser, error)
	// Delete removes the object at key. A missing object is not an
	// error, matching the Storage Janitor's "row deleted before file,
	// orphan tolerated" contract.
	Delete(key string) error
	// SizeOf returns the size in bytes of the object at key.
	SizeOf(key string) (int64, error)
}

// PathResolver is an optional capability a Store may implement for
// writers that need a real filesystem path rather than a byte- or
// stream-oriented API — gocv.VideoWriter, notably, only knows how to
// open a path. Callers that need it type-assert for it and fall back
// (or fail) when the backing Store doesn't support it.
type PathResolver interface {
	// ResolvePath returns the filesystem path key would be written to,
	// creating parent directories as needed, without creating the file
	// itself.
	ResolvePath(key string) (string, error)
}
