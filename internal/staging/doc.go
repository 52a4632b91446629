// Package staging buffers file edits for one build round before they are
// published as a single commit.
//
// A generation agent makes many independent edit decisions; the staging
// area lets those accumulate locally (upserts and deletions, keyed by
// repository-relative path) so that no network call happens until the
// round commits. The area is owned by exactly one round and must be
// discarded after a commit attempt, successful or not.
package staging
