// Package deploy waits for a triggered build pipeline to finish and for
// the published artifact to become reachable.
//
// Both waits are bounded: a hung pipeline or an unreachable artifact can
// never stall the orchestrator. A reachability timeout is soft; the
// best-known artifact URL is still reported onward because the site may
// simply be slow to publish.
package deploy
