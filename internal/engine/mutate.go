package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/graphsync/internal/model"
	"github.com/roach88/graphsync/internal/remote"
	"github.com/roach88/graphsync/internal/store"
)

// Op names a relationship mutation.
type Op string

const (
	OpSend    Op = "send"
	OpAccept  Op = "accept"
	OpDecline Op = "decline"
)

// ParseOp parses an operation name.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpSend, OpAccept, OpDecline:
		return op, nil
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// MutationResult is delivered once per Mutate call.
type MutationResult struct {
	// ID correlates log lines of one mutation. Joined callers share it.
	ID string

	// Op is the operation that was executed. A send to an identity with an
	// incoming request executes as OpAccept.
	Op Op

	// Requested is the operation this caller asked for.
	Requested Op

	Identity model.Identity

	// Shared is true when the caller joined a mutation already in flight.
	Shared bool

	Err error

	// Reconciled is closed once the affected sources have been refreshed
	// after the mutation settled. Closed immediately when no refresh was
	// needed.
	Reconciled <-chan struct{}
}

// plan is what one mutation does to the store and the backend.
type plan struct {
	op       Op
	state    model.State
	affected []model.Source
	call     func(ctx context.Context) error
}

// Mutator executes mutations with optimistic store updates.
type Mutator struct {
	client    remote.Client
	store     *store.Store
	refresher *Refresher
	ids       IDGenerator
	timeout   time.Duration
	logger    *slog.Logger

	// Keyed by identity key: one mutation per identity at a time.
	group singleflight.Group
}

func newMutator(client remote.Client, st *store.Store, r *Refresher, ids IDGenerator, timeout time.Duration, logger *slog.Logger) *Mutator {
	return &Mutator{
		client:    client,
		store:     st,
		refresher: r,
		ids:       ids,
		timeout:   timeout,
		logger:    logger,
	}
}

// Mutate runs op against id. A second call for the same identity while one
// is in flight joins it; the backend sees a single request. Never blocks.
func (m *Mutator) Mutate(ctx context.Context, op Op, id model.Identity) <-chan MutationResult {
	out := make(chan MutationResult, 1)

	id = m.store.Resolve(id)
	if id.IsZero() {
		out <- MutationResult{
			Op:         op,
			Requested:  op,
			Err:        preconditionFailed(op, id, model.StateNone, ErrUnknownIdentity),
			Reconciled: closedChan(),
		}
		return out
	}

	ctx = context.WithoutCancel(ctx)
	ch := m.group.DoChan(string(id.Key()), func() (any, error) {
		return m.run(ctx, op, id), nil
	})
	go func() {
		res := <-ch
		mr := res.Val.(MutationResult)
		mr.Requested = op
		mr.Shared = res.Shared
		out <- mr
	}()
	return out
}

func (m *Mutator) run(ctx context.Context, op Op, id model.Identity) MutationResult {
	res := MutationResult{ID: m.ids.Generate(), Op: op, Identity: id}

	p, err := m.plan(op, id)
	if err != nil {
		res.Err = err
		res.Reconciled = closedChan()
		m.logger.Info("mutation rejected",
			"mutation", res.ID,
			"op", op,
			"identity", id,
			"error", err,
		)
		return res
	}
	res.Op = p.op

	ov, snap := m.store.ApplyOptimistic(id, p.state, p.affected...)
	m.logger.Info("mutation started",
		"mutation", res.ID,
		"op", p.op,
		"identity", id,
		"seq", snap.Seq,
	)

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err = p.call(callCtx)
	cancel()

	if err != nil {
		m.store.Revert(ov)
		res.Err = err
		if remote.IsConflict(err) {
			res.Reconciled = m.refresher.Reconcile(ctx, m.store.Stamp(), p.affected...)
		} else {
			res.Reconciled = closedChan()
		}
		m.logger.Warn("mutation reverted",
			"mutation", res.ID,
			"op", p.op,
			"identity", id,
			"error", err,
		)
		return res
	}

	at := m.store.Confirm(ov)
	res.Reconciled = m.refresher.Reconcile(ctx, at, p.affected...)
	m.logger.Info("mutation confirmed",
		"mutation", res.ID,
		"op", p.op,
		"identity", id,
	)
	return res
}

// plan checks preconditions against the current state and decides the
// optimistic state and the sources to reconcile.
func (m *Mutator) plan(op Op, id model.Identity) (plan, error) {
	state := m.store.Classify(id)
	self := m.store.Self()

	if op == OpSend && state == model.StateIncomingPending {
		m.logger.Debug("send redirected to accept", "identity", id)
		op = OpAccept
	}
	if id.Email == "" {
		return plan{}, preconditionFailed(op, id, state, ErrUnknownIdentity)
	}

	switch op {
	case OpSend:
		switch state {
		case model.StateAccepted:
			return plan{}, preconditionFailed(op, id, state, ErrAlreadyConnected)
		case model.StateOutgoingPending:
			return plan{}, preconditionFailed(op, id, state, ErrAlreadyRequested)
		}
		return plan{
			op:       op,
			state:    model.StateOutgoingPending,
			affected: []model.Source{model.SourceOutgoing},
			call: func(ctx context.Context) error {
				return m.client.SendFriendRequest(ctx, self.ID, id.Email)
			},
		}, nil

	case OpAccept:
		if state != model.StateIncomingPending {
			return plan{}, preconditionFailed(op, id, state, ErrNoPendingRequest)
		}
		return plan{
			op:       op,
			state:    model.StateAccepted,
			affected: []model.Source{model.SourceNetwork, model.SourceIncoming},
			call: func(ctx context.Context) error {
				return m.client.AcceptFriendRequest(ctx, id.Email, self.ID)
			},
		}, nil

	case OpDecline:
		if state != model.StateIncomingPending {
			return plan{}, preconditionFailed(op, id, state, ErrNoPendingRequest)
		}
		return plan{
			op:       op,
			state:    model.StateNone,
			affected: []model.Source{model.SourceIncoming},
			call: func(ctx context.Context) error {
				return m.client.DeclineFriendRequest(ctx, id.Email, self.ID)
			},
		}, nil
	}
	return plan{}, fmt.Errorf("unknown operation %q", op)
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
