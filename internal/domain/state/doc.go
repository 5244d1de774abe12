// Package state persists the host snapshot: window bounds, each panel's
// enabled flag and last URL. Writes go through a coalescing background
// writer; loading never fails, it falls back to an empty snapshot.
package state
