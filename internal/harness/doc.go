// Package harness runs YAML-described scenarios against the real engine
// backed by an in-memory fake backend.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	user: { id: 1, email: me@example.com }
//	backend:
//	  incoming: '[{"sender": {"id": 2, "email": "ada@example.com"}}]'
//	steps:
//	  - refresh: [incoming]
//	  - hold: accept
//	  - mutate: { op: accept, who: "2" }
//	    async: true
//	  - wait_calls: { accept: 1 }
//	  - expect: { states: { "2": Accepted }, counts: { pending: 0 } }
//	  - backend: { incoming: '[]' }
//	  - release: accept
//	  - await: true
//	assertions:
//	  - type: calls
//	    op: accept
//	    count: 1
//	  - type: no_flicker
//	    who: "2"
//	    state: IncomingPending
//
// Backend keys are FakeClient operation names: network, incoming, outgoing,
// candidates:<kind>, send, accept, decline.
//
// # Step Types
//
// Each step performs exactly one action:
//
//   - refresh: refresh the listed sources and wait (async: true to not wait)
//   - mutate: run send/accept/decline and wait for the result and its
//     reconciliation; error names the expected failure kind
//   - backend: replace read payloads
//   - fail: make an operation fail with a typed backend error (clear: true resets it)
//   - hold / release: block an operation in flight, then let it go
//   - wait_calls: wait until operations have been called at least N times
//   - await: wait for every async step started so far
//   - expect: check states, counters and call counts at this point
//
// # Assertion Types
//
//   - calls: an operation was called exactly N times
//   - state: an identity ends in a state (Candidate included)
//   - counts: final badge counters (subset)
//   - merges: a source was merged exactly N times
//   - no_flicker: once an identity left a state it never re-entered it in
//     any published snapshot
//
// # Deterministic Testing
//
// Mutation ids come from testutil.SequentialIDs and refresh timestamps from
// testutil.SteppingTime, so step outcomes are identical across runs and can
// be compared against golden files.
package harness
