package store

import (
	"github.com/roach88/graphsync/internal/model"
)

// Overlay is an optimistic state forced onto one identity while a
// mutation is pending or awaiting reconciliation.
type Overlay struct {
	id          int64
	key         model.Key
	state       model.State
	pending     map[model.Source]bool
	confirmedAt int64
	prev        *Overlay
}

// State returns the state the overlay forces.
func (o *Overlay) State() model.State {
	return o.state
}

// ApplyOptimistic forces identity into state until the returned overlay is
// reverted or reconciled. affected lists the sources whose next post-
// confirmation merge settles the overlay. StateNone hides the identity.
func (s *Store) ApplyOptimistic(id model.Identity, state model.State, affected ...model.Source) (*Overlay, *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.resolveLocked(id)
	if key == "" {
		return nil, s.current.Load()
	}
	if _, ok := s.profiles[key]; !ok {
		s.profiles[key] = model.Record{Identity: model.NewIdentity(id.ID, id.Email)}
	}

	s.nextOv++
	ov := &Overlay{
		id:      s.nextOv,
		key:     key,
		state:   state,
		pending: make(map[model.Source]bool, len(affected)),
		prev:    s.overlays[key],
	}
	for _, src := range affected {
		ov.pending[src] = true
	}
	s.overlays[key] = ov

	snap := s.publishLocked()
	s.logger.Debug("optimistic state applied",
		"key", key,
		"state", state,
		"seq", snap.Seq,
	)
	s.notifyLocked(Change{Seq: snap.Seq, Reason: ReasonOptimistic, Identity: id, Snapshot: snap})
	return ov, snap
}

// Revert undoes an overlay, restoring whatever state preceded it.
func (s *Store) Revert(ov *Overlay) *Snapshot {
	if ov == nil {
		return s.Snapshot()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	top, ok := s.overlays[ov.key]
	switch {
	case !ok:
		// already settled or re-keyed away
	case top == ov:
		if ov.prev != nil {
			s.overlays[ov.key] = ov.prev
		} else {
			delete(s.overlays, ov.key)
		}
	default:
		for cur := top; cur != nil; cur = cur.prev {
			if cur.prev == ov {
				cur.prev = ov.prev
				break
			}
		}
	}

	snap := s.publishLocked()
	s.logger.Debug("optimistic state reverted", "key", ov.key, "state", ov.state, "seq", snap.Seq)
	s.notifyLocked(Change{Seq: snap.Seq, Reason: ReasonRevert, Snapshot: snap})
	return snap
}

// Confirm marks an overlay as accepted by the backend and returns the
// confirmation stamp. Merges of affected sources fetched after this stamp
// settle the overlay.
func (s *Store) Confirm(ov *Overlay) int64 {
	if ov == nil {
		return s.clock.Current()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ov.confirmedAt = s.clock.Next()
	if len(ov.pending) == 0 {
		s.dropLocked(ov)
	}
	snap := s.publishLocked()
	s.notifyLocked(Change{Seq: snap.Seq, Reason: ReasonConfirm, Snapshot: snap})
	return ov.confirmedAt
}

// settleLocked retires confirmed overlays that src has now reconciled.
func (s *Store) settleLocked(src model.Source, startedAt int64) {
	for _, ov := range s.overlays {
		if ov.confirmedAt == 0 || startedAt <= ov.confirmedAt || !ov.pending[src] {
			continue
		}
		delete(ov.pending, src)
		if len(ov.pending) == 0 {
			s.dropLocked(ov)
			s.logger.Debug("optimistic state reconciled", "key", ov.key, "source", src)
		}
	}
}

// dropLocked removes a settled overlay together with the history beneath it.
func (s *Store) dropLocked(ov *Overlay) {
	if s.overlays[ov.key] == ov {
		delete(s.overlays, ov.key)
	}
}

// PendingOverlays returns how many overlays are active.
func (s *Store) PendingOverlays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.overlays)
}
