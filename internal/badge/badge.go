// Package badge derives the UI counters from a store snapshot.
//
// Counts are computed from one immutable snapshot, so a counter can never
// disagree with the partitions it was derived from and is never cached
// across a store write.
package badge

import "github.com/roach88/graphsync/internal/store"

// Counts are the UI-facing counters.
type Counts struct {
	Seq        int64 `json:"seq"`
	Pending    int   `json:"pending"`
	Network    int   `json:"network"`
	Outgoing   int   `json:"outgoing"`
	Candidates int   `json:"candidates"`
}

// Project computes counters for snap. A nil snapshot yields zero counts.
func Project(snap *store.Snapshot) Counts {
	if snap == nil {
		return Counts{}
	}
	return Counts{
		Seq:        snap.Seq,
		Pending:    len(snap.Incoming),
		Network:    len(snap.Accepted),
		Outgoing:   len(snap.Outgoing),
		Candidates: len(snap.Candidates),
	}
}

// Watch converts store changes into a stream of counts. The returned
// channel closes when changes closes. Unchanged counters are not re-sent.
func Watch(changes <-chan store.Change) <-chan Counts {
	out := make(chan Counts, 1)
	go func() {
		defer close(out)
		var last *Counts
		for c := range changes {
			counts := Project(c.Snapshot)
			if last != nil && last.SameTotals(counts) {
				continue
			}
			last = &counts
			out <- counts
		}
	}()
	return out
}

// SameTotals reports whether c and o show the same counters, ignoring Seq.
func (c Counts) SameTotals(o Counts) bool {
	return c.Pending == o.Pending &&
		c.Network == o.Network &&
		c.Outgoing == o.Outgoing &&
		c.Candidates == o.Candidates
}
