// Package engine coordinates refreshes and mutations over the connection
// graph store and is the surface the presentation layer talks to.
//
// ARCHITECTURE:
//
// Refreshes:
// Each source has at most one refresh in flight. A refresh requested while
// one is running attaches to it instead of issuing a second request, and
// both callers receive the same RefreshResult. A successful fetch is
// normalized and merged atomically; a failed one leaves the store untouched
// and is never retried automatically.
//
// Mutations:
// Send, Accept and Decline apply an optimistic overlay before the network
// call, revert it on failure and confirm it on success. A confirmed overlay
// holds until reconciliation refreshes of the affected sources land. Calls
// for the same identity while one is pending join the pending call.
//
// Non-blocking API:
// Refresh and Mutate return a buffered channel that receives exactly one
// result. Work is detached from the caller's context cancellation and is
// bounded by the configured request timeout instead.
//
// CRITICAL PATTERNS:
//
// Logical clock ordering:
// Fetches are stamped when they start; confirmations are stamped when the
// backend accepts a mutation. Only fetches stamped after a confirmation
// can retire the corresponding overlay.
//
// No partial writes:
// Every failure path either reverts the optimistic change or forces a
// clean re-fetch of the affected sources.
package engine
