// Package store is the authoritative in-memory cache of the current user's
// connection graph.
//
// The store keeps, per remote source, the ordered membership of the last
// successfully merged batch, plus one profile per identity accumulated
// non-destructively across every source. From these it derives the four
// partitions (accepted, outgoing, incoming, candidates) and publishes them
// as an immutable Snapshot.
//
// # Invariants
//
//   - An identity holds at most one relationship state. When server lists
//     disagree the precedence is Accepted > OutgoingPending > IncomingPending.
//   - Candidates never include the current user nor any identity with a
//     relationship. Candidate batches are kept raw so an identity whose
//     request was declined reappears only while a candidate source still
//     lists it.
//   - Merging a source replaces that source's membership wholesale, so a
//     repeated batch is idempotent and stale members never linger.
//   - Email-only entries are re-keyed to the id once an id-bearing record
//     for the same email is merged.
//
// # Concurrency Model
//
// All writes go through one mutex; every write republishes a fresh
// Snapshot through an atomic pointer, so readers never block and never see
// a half-applied merge. Subscribers are notified under the same lock,
// which keeps notifications in sequence order.
//
// # Optimistic Overlays
//
// Mutations apply an overlay that forces one identity's state until the
// mutation is reverted, or until it is confirmed and every affected source
// has merged a batch fetched after the confirmation.
package store
