// Package model defines the shared vocabulary of graphsync: user identities,
// connection records, relationship states and the remote sources that feed
// the connection graph.
//
// # Identity
//
// A user is identified by a stable integer id. Some endpoints only return an
// email, so Identity also carries the email as a secondary key. Key() yields
// the id-based key whenever the id is known and falls back to the normalized
// email otherwise. The store re-keys email-only entries as soon as an
// id-bearing record for the same email is observed.
//
// # Records
//
// Record.Absorb implements the non-destructive merge rule: a populated field
// is never overwritten with a blank one.
package model
