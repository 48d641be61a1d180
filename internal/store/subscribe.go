package store

import "github.com/roach88/graphsync/internal/model"

// Reason says which write produced a Change.
type Reason string

const (
	ReasonMerge      Reason = "merge"
	ReasonOptimistic Reason = "optimistic"
	ReasonRevert     Reason = "revert"
	ReasonConfirm    Reason = "confirm"
)

// DefaultSubscriberBuffer is used when Subscribe is given a non-positive size.
const DefaultSubscriberBuffer = 16

// Change is delivered to subscribers after every store write.
type Change struct {
	Seq      int64
	Reason   Reason
	Source   model.Source   // set for merges
	Identity model.Identity // set for optimistic writes
	Snapshot *Snapshot
}

// Subscribe registers a change listener. When the buffer is full the
// oldest undelivered change is discarded, so the newest snapshot always
// arrives. The returned cancel func closes the channel.
func (s *Store) Subscribe(buffer int) (<-chan Change, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	ch := make(chan Change, buffer)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// notifyLocked fans a change out without blocking the writer.
func (s *Store) notifyLocked(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
			s.logger.Warn("subscriber change dropped", "seq", c.Seq)
		}
	}
}
