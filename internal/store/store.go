package store

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/graphsync/internal/model"
)

// relationshipOrder is the precedence used when server lists disagree.
var relationshipOrder = []model.Source{
	model.SourceNetwork,
	model.SourceOutgoing,
	model.SourceIncoming,
}

// Store holds the connection graph of one user.
type Store struct {
	self   model.Identity
	clock  *Clock
	logger *slog.Logger

	mu        sync.Mutex
	aliases   map[string]int64 // normalized email -> id
	profiles  map[model.Key]model.Record
	members   map[model.Source][]model.Key
	overlays  map[model.Key]*Overlay
	nextOv    int64
	subs      map[int]chan Change
	nextSubID int

	current atomic.Pointer[Snapshot]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock replaces the logical clock.
func WithClock(c *Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// New creates an empty store for the given current user.
func New(self model.Identity, opts ...Option) *Store {
	s := &Store{
		self:     model.NewIdentity(self.ID, self.Email),
		clock:    NewClock(),
		logger:   slog.Default(),
		aliases:  make(map[string]int64),
		profiles: make(map[model.Key]model.Record),
		members:  make(map[model.Source][]model.Key),
		overlays: make(map[model.Key]*Overlay),
		subs:     make(map[int]chan Change),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.self.ID != 0 && s.self.Email != "" {
		s.aliases[s.self.Email] = s.self.ID
	}
	s.current.Store(emptySnapshot())
	return s
}

// Self returns the current user's identity.
func (s *Store) Self() model.Identity {
	return s.self
}

// Snapshot returns the latest published snapshot. Never nil.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Classify is shorthand for Snapshot().Classify(id).
func (s *Store) Classify(id model.Identity) model.State {
	return s.Snapshot().Classify(id)
}

// Stamp returns a fresh clock value. Refreshes stamp the moment their fetch
// starts so merges can be ordered against overlay confirmations.
func (s *Store) Stamp() int64 {
	return s.clock.Next()
}

// Resolve completes an identity with whatever id or email the store has
// observed for it, including identities not currently visible.
func (s *Store) Resolve(id model.Identity) model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.resolveLocked(id)
	out := model.NewIdentity(id.ID, id.Email)
	if p, ok := s.profiles[key]; ok {
		if out.ID == 0 {
			out.ID = p.Identity.ID
		}
		if out.Email == "" {
			out.Email = p.Identity.Email
		}
	}
	if out.ID == 0 && out.Email != "" {
		out.ID = s.aliases[out.Email]
	}
	return out
}

// Merge replaces the membership of src with records and republishes.
// startedAt is the Stamp taken when the fetch producing records began.
func (s *Store) Merge(src model.Source, records []model.Record, startedAt int64) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]model.Key, 0, len(records))
	seen := make(map[model.Key]bool, len(records))
	for _, r := range records {
		key := s.absorbLocked(r)
		if key == "" || seen[key] {
			continue
		}
		if src.IsCandidatePool() && s.isSelf(s.profiles[key].Identity) {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	s.members[src] = keys
	s.settleLocked(src, startedAt)

	snap := s.publishLocked()
	s.logger.Debug("source merged",
		"source", src,
		"records", len(records),
		"members", len(keys),
		"seq", snap.Seq,
	)
	s.notifyLocked(Change{Seq: snap.Seq, Reason: ReasonMerge, Source: src, Snapshot: snap})
	return snap
}

// absorbLocked folds one record into the profile table and returns its key.
func (s *Store) absorbLocked(r model.Record) model.Key {
	id := model.NewIdentity(r.Identity.ID, r.Identity.Email)
	if id.IsZero() {
		return ""
	}
	if id.ID == 0 {
		id.ID = s.aliases[id.Email]
	}
	if id.ID != 0 && id.Email != "" {
		if prev, ok := s.aliases[id.Email]; !ok || prev != id.ID {
			s.aliases[id.Email] = id.ID
			s.rekeyLocked(model.EmailKey(id.Email), model.IDKey(id.ID))
		}
	}

	key := id.Key()
	r.Identity = id
	s.profiles[key] = s.profiles[key].Absorb(r)
	return key
}

// rekeyLocked moves everything stored under an email-only key onto the id key.
func (s *Store) rekeyLocked(from, to model.Key) {
	if p, ok := s.profiles[from]; ok {
		s.profiles[to] = p.Absorb(s.profiles[to])
		delete(s.profiles, from)
	}
	for src, keys := range s.members {
		if !slices.Contains(keys, from) {
			continue
		}
		out := make([]model.Key, 0, len(keys))
		for _, k := range keys {
			if k == from {
				k = to
			}
			if !slices.Contains(out, k) {
				out = append(out, k)
			}
		}
		s.members[src] = out
	}
	if ov, ok := s.overlays[from]; ok {
		delete(s.overlays, from)
		if top, taken := s.overlays[to]; taken {
			s.logger.Warn("overlays merged on rekey", "from", from, "to", to)
			ov = chainOverlays(ov, top)
		}
		for cur := ov; cur != nil; cur = cur.prev {
			cur.key = to
		}
		s.overlays[to] = ov
	}
	s.logger.Debug("identity rekeyed", "from", from, "to", to)
}

// chainOverlays interleaves two overlay stacks into one, newest on top, so
// every overlay stays revertible after its identity is re-keyed.
func chainOverlays(a, b *Overlay) *Overlay {
	var all []*Overlay
	for _, top := range []*Overlay{a, b} {
		for cur := top; cur != nil; cur = cur.prev {
			all = append(all, cur)
		}
	}
	slices.SortFunc(all, func(x, y *Overlay) int { return int(y.id - x.id) })
	for i, ov := range all {
		ov.prev = nil
		if i+1 < len(all) {
			ov.prev = all[i+1]
		}
	}
	return all[0]
}

func (s *Store) resolveLocked(id model.Identity) model.Key {
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

func (s *Store) isSelf(id model.Identity) bool {
	if s.self.IsZero() {
		return false
	}
	return id.Matches(s.self)
}

// publishLocked derives the partitions and swaps in a new snapshot.
func (s *Store) publishLocked() *Snapshot {
	states := make(map[model.Key]model.State)
	var order []model.Key
	visit := func(k model.Key) {
		if _, ok := states[k]; !ok {
			order = append(order, k)
		}
	}

	for _, src := range relationshipOrder {
		for _, k := range s.members[src] {
			visit(k)
			if _, ok := states[k]; !ok {
				states[k] = src.State()
			}
		}
	}

	// Overlays in creation order so optimistic entries append stably.
	ovs := make([]*Overlay, 0, len(s.overlays))
	for _, ov := range s.overlays {
		ovs = append(ovs, ov)
	}
	slices.SortFunc(ovs, func(a, b *Overlay) int { return int(a.id - b.id) })
	for _, ov := range ovs {
		visit(ov.key)
		states[ov.key] = ov.state
	}

	for _, src := range model.AllSources {
		if !src.IsCandidatePool() {
			continue
		}
		for _, k := range s.members[src] {
			if st, ok := states[k]; ok && st != model.StateNone {
				continue
			}
			visit(k)
			states[k] = model.StateCandidate
		}
	}

	snap := &Snapshot{
		Seq:        s.clock.Next(),
		Accepted:   []model.Record{},
		Outgoing:   []model.Record{},
		Incoming:   []model.Record{},
		Candidates: []model.Record{},
		states:     make(map[model.Key]model.State, len(states)),
		records:    make(map[model.Key]model.Record, len(states)),
		aliases:    make(map[string]int64, len(s.aliases)),
	}
	for email, id := range s.aliases {
		snap.aliases[email] = id
	}

	for _, k := range order {
		st := states[k]
		if st == model.StateNone {
			continue
		}
		rec := s.profiles[k].Clone()
		rec.State = st
		snap.states[k] = st
		snap.records[k] = rec
		switch st {
		case model.StateAccepted:
			snap.Accepted = append(snap.Accepted, rec)
		case model.StateOutgoingPending:
			snap.Outgoing = append(snap.Outgoing, rec)
		case model.StateIncomingPending:
			snap.Incoming = append(snap.Incoming, rec)
		case model.StateCandidate:
			snap.Candidates = append(snap.Candidates, rec)
		}
	}

	s.current.Store(snap)
	return snap
}
