// Package hosting abstracts the repository host the orchestrator builds
// against.
//
// The Host interface exposes the primitives the commit builder and the
// readiness poller need: repository creation, content listing, the git
// object store (blobs, trees, commits, refs), workflow-run status, and
// Pages enablement. The production implementation wraps the GitHub REST
// API; tests substitute in-memory fakes.
package hosting
