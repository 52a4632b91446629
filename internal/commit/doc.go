// Package commit publishes a staged snapshot as version-control commits.
//
// The atomic path builds blob, tree, and commit objects and moves the
// branch ref once, so readers either see the whole round or none of it.
// A per-file fallback through the contents API is kept for cases where
// one file's history must be independently visible; it trades atomicity
// for per-path commits and should not be the default.
package commit
