package store

import "github.com/roach88/graphsync/internal/model"

// Snapshot is an immutable view of the connection graph at one sequence
// number. Partition slices must not be modified by callers.
type Snapshot struct {
	// Seq is the logical clock value at publication.
	Seq int64

	Accepted   []model.Record
	Outgoing   []model.Record
	Incoming   []model.Record
	Candidates []model.Record

	states  map[model.Key]model.State
	records map[model.Key]model.Record
	aliases map[string]int64
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Accepted:   []model.Record{},
		Outgoing:   []model.Record{},
		Incoming:   []model.Record{},
		Candidates: []model.Record{},
		states:     map[model.Key]model.State{},
		records:    map[model.Key]model.Record{},
		aliases:    map[string]int64{},
	}
}

// resolve maps an identity onto its store key, upgrading email-only
// identities to their id when the id is known.
func (s *Snapshot) resolve(id model.Identity) model.Key {
	if id.ID != 0 {
		return model.IDKey(id.ID)
	}
	email := model.NormalizeEmail(id.Email)
	if email == "" {
		return ""
	}
	if known, ok := s.aliases[email]; ok {
		return model.IDKey(known)
	}
	return model.EmailKey(email)
}

// State returns the identity's state including StateCandidate.
func (s *Snapshot) State(id model.Identity) model.State {
	return s.states[s.resolve(id)]
}

// Classify returns the identity's relationship: StateNone, StateAccepted,
// StateOutgoingPending or StateIncomingPending. Candidates classify as
// StateNone since no relationship exists yet.
func (s *Snapshot) Classify(id model.Identity) model.State {
	st := s.State(id)
	if !st.IsRelationship() {
		return model.StateNone
	}
	return st
}

// Lookup returns the visible record for an identity.
func (s *Snapshot) Lookup(id model.Identity) (model.Record, bool) {
	r, ok := s.records[s.resolve(id)]
	if !ok {
		return model.Record{}, false
	}
	return r.Clone(), true
}

// Len returns the number of visible identities across all partitions.
func (s *Snapshot) Len() int {
	return len(s.records)
}
