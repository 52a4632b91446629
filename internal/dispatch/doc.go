// Package dispatch delivers round-completion payloads to a
// caller-supplied callback URL.
//
// Delivery retries under transient failure with doubling backoff and a
// fixed attempt budget; it never retries forever and never panics past
// its boundary. Exhausted delivery is soft: the repository, commit, and
// deployment already happened, so the caller decides what failure means.
package dispatch
