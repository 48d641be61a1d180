// Package normalize turns the backend's heterogeneous JSON payloads into
// ordered sequences of model.Record.
//
// Shapes are tried in a fixed order:
//
//  1. a bare array of objects
//  2. an object holding the array under a known key ("friends", "users", ...)
//  3. a success/data envelope whose data is either of the above
//  4. a scan of every key in document order, descending into nested
//     objects, for the first array of objects carrying an email field
//
// Normalize never fails. When nothing matches it returns an empty result
// with a *DecodeError diagnostic; rows lacking both id and email are
// skipped the same way.
package normalize
