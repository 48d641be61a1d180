// Package remote is the thin transport layer over the backend's connection
// endpoints.
//
// Read endpoints return the raw response body untouched; shape handling is
// the normalizer's job. Mutation endpoints return only an error. Every
// failure is reported as a *remote.Error carrying one of three codes:
//
//   - TRANSPORT: network failure, timeout, 5xx or unexpected status. Retrying
//     is the caller's decision.
//   - AUTH: missing or rejected session token. Never retried.
//   - CONFLICT: the backend refused a mutation (e.g. already accepted). The
//     engine answers with a forced reconciliation refresh.
package remote
