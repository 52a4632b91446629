// Package orchestrator sequences one round of work: repository lookup
// or creation, content generation into the staging area, atomic commit,
// readiness wait, result delivery, and task index update.
//
// Rounds for different tasks run concurrently; a second round for the
// same task while one is in flight is rejected with ErrRoundActive.
// Only setup and commit failures abort a round. Pipeline failure,
// reachability timeout, and delivery exhaustion are reported in the
// outcome and the round still counts as materially complete.
package orchestrator
