package store

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/graphsync/internal/model"
)

var self = model.Identity{ID: 1, Email: "me@x.com"}

func newTestStore() *Store {
	return New(self, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func rec(id int64, email string) model.Record {
	return model.Record{Identity: model.Identity{ID: id, Email: email}}
}

func keysOf(records []model.Record) []model.Key {
	out := []model.Key{}
	for _, r := range records {
		out = append(out, r.Identity.Key())
	}
	return out
}

// assertDisjoint checks that no identity holds two relationship states.
func assertDisjoint(t *testing.T, snap *Snapshot) {
	t.Helper()
	seen := map[model.Key]string{}
	check := func(name string, records []model.Record) {
		for _, r := range records {
			k := r.Identity.Key()
			if prev, ok := seen[k]; ok {
				t.Errorf("%s present in both %s and %s", k, prev, name)
			}
			seen[k] = name
		}
	}
	check("accepted", snap.Accepted)
	check("outgoing", snap.Outgoing)
	check("incoming", snap.Incoming)
	check("candidates", snap.Candidates)
}

func TestMerge_PopulatesPartitions(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceNetwork, []model.Record{rec(2, "a@x.com")}, s.Stamp())
	s.Merge(model.SourceOutgoing, []model.Record{rec(3, "b@x.com")}, s.Stamp())
	s.Merge(model.SourceIncoming, []model.Record{rec(4, "c@x.com")}, s.Stamp())
	snap := s.Merge(model.SourceMentors, []model.Record{rec(5, "d@x.com")}, s.Stamp())

	assert.Equal(t, []model.Key{"id:2"}, keysOf(snap.Accepted))
	assert.Equal(t, []model.Key{"id:3"}, keysOf(snap.Outgoing))
	assert.Equal(t, []model.Key{"id:4"}, keysOf(snap.Incoming))
	assert.Equal(t, []model.Key{"id:5"}, keysOf(snap.Candidates))

	assert.Equal(t, model.StateAccepted, s.Classify(model.Identity{ID: 2}))
	assert.Equal(t, model.StateOutgoingPending, s.Classify(model.Identity{Email: "b@x.com"}))
	assert.Equal(t, model.StateIncomingPending, s.Classify(model.Identity{ID: 4}))
	assert.Equal(t, model.StateNone, s.Classify(model.Identity{ID: 5}))
	assert.Equal(t, model.StateCandidate, snap.State(model.Identity{ID: 5}))
	assert.Equal(t, model.StateNone, s.Classify(model.Identity{ID: 99}))
}

func TestMerge_Idempotent(t *testing.T) {
	s := newTestStore()
	batch := []model.Record{rec(2, "a@x.com"), rec(3, "b@x.com"), rec(2, "a@x.com")}

	first := s.Merge(model.SourceNetwork, batch, s.Stamp())
	second := s.Merge(model.SourceNetwork, batch, s.Stamp())

	assert.Equal(t, first.Accepted, second.Accepted)
	assert.Equal(t, []model.Key{"id:2", "id:3"}, keysOf(second.Accepted))
	assert.Greater(t, second.Seq, first.Seq)
}

func TestMerge_ReplacesSourceMembership(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceIncoming, []model.Record{rec(2, "a@x.com"), rec(3, "b@x.com")}, s.Stamp())
	snap := s.Merge(model.SourceIncoming, []model.Record{rec(3, "b@x.com")}, s.Stamp())

	assert.Equal(t, []model.Key{"id:3"}, keysOf(snap.Incoming))
	assert.Equal(t, model.StateNone, s.Classify(model.Identity{ID: 2}))
}

func TestMerge_NonDestructiveFields(t *testing.T) {
	s := newTestStore()
	full := model.Record{Identity: model.Identity{ID: 2, Email: "a@x.com"}, DisplayName: "Ada", Title: "CTO"}
	s.Merge(model.SourceNetwork, []model.Record{full}, s.Stamp())
	snap := s.Merge(model.SourceNetwork, []model.Record{{Identity: model.Identity{ID: 2}, Company: "Acme"}}, s.Stamp())

	r, ok := snap.Lookup(model.Identity{ID: 2})
	require.True(t, ok)
	assert.Equal(t, "Ada", r.DisplayName)
	assert.Equal(t, "CTO", r.Title)
	assert.Equal(t, "Acme", r.Company)
	assert.Equal(t, "a@x.com", r.Identity.Email)
	assert.Equal(t, model.StateAccepted, r.State)
}

func TestMerge_ConflictingListsStayDisjoint(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceIncoming, []model.Record{rec(2, "a@x.com"), rec(3, "b@x.com")}, s.Stamp())
	s.Merge(model.SourceOutgoing, []model.Record{rec(3, "b@x.com")}, s.Stamp())
	snap := s.Merge(model.SourceNetwork, []model.Record{rec(2, "a@x.com")}, s.Stamp())

	assertDisjoint(t, snap)
	assert.Equal(t, model.StateAccepted, snap.Classify(model.Identity{ID: 2}))
	assert.Equal(t, model.StateOutgoingPending, snap.Classify(model.Identity{ID: 3}))
	assert.Empty(t, snap.Incoming)
}

func TestMerge_CandidatesExcludeSelfAndRelationships(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceOutgoing, []model.Record{rec(3, "b@x.com")}, s.Stamp())
	snap := s.Merge(model.SourceEntrepreneurs, []model.Record{
		rec(1, "me@x.com"),
		rec(3, "b@x.com"),
		rec(4, "c@x.com"),
		{Identity: model.Identity{Email: "ME@x.com"}},
	}, s.Stamp())

	assert.Equal(t, []model.Key{"id:4"}, keysOf(snap.Candidates))
	assertDisjoint(t, snap)
}

func TestMerge_ExternalAcceptRemovesCandidate(t *testing.T) {
	s := newTestStore()
	candidates := []model.Record{rec(10, "a@x.com"), rec(11, "b@x.com"), rec(12, "c@x.com")}
	s.Merge(model.SourceMentors, candidates, s.Stamp())

	// A becomes a connection through some other channel
	snap := s.Merge(model.SourceNetwork, []model.Record{rec(10, "a@x.com")}, s.Stamp())
	assert.Equal(t, []model.Key{"id:11", "id:12"}, keysOf(snap.Candidates))

	// the next candidate merge still lists A but it stays excluded
	snap = s.Merge(model.SourceMentors, candidates, s.Stamp())
	assert.Equal(t, []model.Key{"id:11", "id:12"}, keysOf(snap.Candidates))
	assert.Equal(t, []model.Key{"id:10"}, keysOf(snap.Accepted))
}

func TestMerge_CandidateInBothPoolsListedOnce(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceMentors, []model.Record{rec(5, "e@x.com")}, s.Stamp())
	snap := s.Merge(model.SourceEntrepreneurs, []model.Record{rec(5, "e@x.com")}, s.Stamp())
	assert.Len(t, snap.Candidates, 1)
}

func TestMerge_EmailOnlyRecordRekeyedToID(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceEntrepreneurs, []model.Record{
		{Identity: model.Identity{Email: "Bea@x.com"}, DisplayName: "Bea"},
	}, s.Stamp())
	assert.Equal(t, model.StateCandidate, s.Snapshot().State(model.Identity{Email: "bea@x.com"}))

	snap := s.Merge(model.SourceNetwork, []model.Record{rec(5, "bea@x.com")}, s.Stamp())

	require.Len(t, snap.Accepted, 1)
	assert.Equal(t, model.Identity{ID: 5, Email: "bea@x.com"}, snap.Accepted[0].Identity)
	assert.Equal(t, "Bea", snap.Accepted[0].DisplayName)
	assert.Empty(t, snap.Candidates)
	assert.Equal(t, model.StateAccepted, snap.Classify(model.Identity{Email: "BEA@x.com"}))
	assert.Equal(t, model.StateAccepted, snap.Classify(model.Identity{ID: 5}))

	// later email-only rows resolve straight to the id
	snap = s.Merge(model.SourceIncoming, []model.Record{{Identity: model.Identity{Email: "bea@x.com"}}}, s.Stamp())
	assert.Empty(t, snap.Incoming)
	assertDisjoint(t, snap)
}

func TestResolve_FillsKnownFields(t *testing.T) {
	s := newTestStore()
	s.Merge(model.SourceIncoming, []model.Record{rec(7, "g@x.com")}, s.Stamp())

	assert.Equal(t, model.Identity{ID: 7, Email: "g@x.com"}, s.Resolve(model.Identity{ID: 7}))
	assert.Equal(t, model.Identity{ID: 7, Email: "g@x.com"}, s.Resolve(model.Identity{Email: "G@x.com"}))
	assert.Equal(t, model.Identity{ID: 8}, s.Resolve(model.Identity{ID: 8}))
}

func TestStore_ConcurrentMergesKeepInvariants(t *testing.T) {
	s := newTestStore()
	var wg sync.WaitGroup

	sources := []model.Source{model.SourceNetwork, model.SourceOutgoing, model.SourceIncoming, model.SourceMentors}
	for i := 0; i < 50; i++ {
		for j, src := range sources {
			wg.Add(1)
			go func(i, j int, src model.Source) {
				defer wg.Done()
				var batch []model.Record
				for k := 0; k < 10; k++ {
					id := int64(100 + (i+j+k)%15)
					batch = append(batch, rec(id, fmt.Sprintf("u%d@x.com", id)))
				}
				s.Merge(src, batch, s.Stamp())
			}(i, j, src)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			assertDisjoint(t, s.Snapshot())
		}
	}()

	wg.Wait()
	<-done
	assertDisjoint(t, s.Snapshot())
}
