package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/roach88/graphsync/internal/engine"
	"github.com/roach88/graphsync/internal/model"
	"github.com/roach88/graphsync/internal/remote"
	"github.com/roach88/graphsync/internal/store"
	"github.com/roach88/graphsync/internal/testutil"
)

// DefaultTimeout bounds every wait inside a scenario.
const DefaultTimeout = 2 * time.Second

// Harness executes one scenario against a fresh engine and fake backend.
type Harness struct {
	engine  *engine.Engine
	backend *testutil.FakeClient
	logger  *slog.Logger

	holds   map[string]func()
	pending []func(*Result)

	mu      sync.Mutex
	changes []store.Change
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Create the fake backend with the scenario's initial payloads
//  2. Create the engine with deterministic ids and timestamps
//  3. Execute steps in order, checking inline expectations
//  4. Release remaining holds and await async steps
//  5. Evaluate assertions against the final state and change history
func Run(scenario *Scenario) (*Result, error) {
	backend := testutil.NewFakeClient()
	for op, body := range scenario.Backend {
		backend.SetPayload(op, body)
	}

	self := model.NewIdentity(1, "me@example.com")
	if scenario.User != nil {
		self = model.NewIdentity(scenario.User.ID, scenario.User.Email)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	eng, err := engine.New(backend, self,
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewSequentialIDs("m")),
		engine.WithNow(testutil.NewSteppingTime().Now),
		engine.WithRequestTimeout(DefaultTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	h := &Harness{
		engine:  eng,
		backend: backend,
		logger:  logger,
		holds:   make(map[string]func()),
	}
	stop := h.record()

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			stop()
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	for _, op := range slices.Sorted(maps.Keys(h.holds)) {
		h.holds[op]()
	}
	h.awaitAll(result)
	stop()

	result.changes = h.changes
	result.Final = h.final()
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, h) {
		result.AddError(msg)
	}
	return result, nil
}

// record subscribes to store changes until the returned func is called.
func (h *Harness) record() func() {
	changes, cancel := h.engine.Subscribe(4096)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for c := range changes {
			h.mu.Lock()
			h.changes = append(h.changes, c)
			h.mu.Unlock()
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	result.Steps = append(result.Steps, StepOutcome{Index: i, Action: describe(step)})
	out := &result.Steps[len(result.Steps)-1]

	switch {
	case len(step.Refresh) > 0:
		finish, err := h.refresh(ctx, step.Refresh)
		if err != nil {
			return err
		}
		if step.Async {
			out.Outcome = "started"
			h.pending = append(h.pending, func(r *Result) { r.Steps[i].Outcome = finish() })
			return nil
		}
		out.Outcome = finish()

	case step.Mutate != nil:
		finish, err := h.mutate(ctx, i, step.Mutate)
		if err != nil {
			return err
		}
		if step.Async {
			out.Outcome = "started"
			h.pending = append(h.pending, func(r *Result) { r.Steps[i].Outcome = finish(r) })
			return nil
		}
		out.Outcome = finish(result)

	case step.Backend != nil:
		for op, body := range step.Backend {
			h.backend.SetPayload(op, body)
		}

	case step.Fail != nil:
		h.backend.SetError(step.Fail.Op, backendError(step.Fail))

	case step.Hold != "":
		h.holds[step.Hold] = h.backend.Hold(step.Hold)

	case step.Release != "":
		release, ok := h.holds[step.Release]
		if !ok {
			return fmt.Errorf("release %s: not held", step.Release)
		}
		release()
		delete(h.holds, step.Release)

	case len(step.WaitCalls) > 0:
		for _, op := range slices.Sorted(maps.Keys(step.WaitCalls)) {
			if !h.waitCalls(op, step.WaitCalls[op]) {
				result.AddError(fmt.Sprintf("step %d: %s called %d times, waited for %d",
					i, op, h.backend.Calls(op), step.WaitCalls[op]))
			}
		}

	case step.Await:
		h.awaitAll(result)

	case step.Expect != nil:
		for _, msg := range h.check(step.Expect) {
			result.AddError(fmt.Sprintf("step %d: %s", i, msg))
		}
	}
	return nil
}

// refresh starts the sources and returns a func that waits for them and
// describes the outcome.
func (h *Harness) refresh(ctx context.Context, names []string) (func() string, error) {
	chans := make([]<-chan engine.RefreshResult, 0, len(names))
	for _, name := range names {
		src, err := model.ParseSource(name)
		if err != nil {
			return nil, err
		}
		chans = append(chans, h.engine.Refresh(ctx, src))
	}
	return func() string {
		parts := make([]string, 0, len(chans))
		for _, ch := range chans {
			select {
			case res := <-ch:
				if res.Err != nil {
					parts = append(parts, fmt.Sprintf("%s=error:%s", res.Source, errorKind(res.Err)))
					continue
				}
				parts = append(parts, fmt.Sprintf("%s=%d (%s)", res.Source, res.Records, res.Shape))
			case <-time.After(DefaultTimeout):
				parts = append(parts, "timeout")
			}
		}
		return strings.Join(parts, ", ")
	}, nil
}

func (h *Harness) mutate(ctx context.Context, i int, m *MutateStep) (func(*Result) string, error) {
	op, err := engine.ParseOp(m.Op)
	if err != nil {
		return nil, err
	}
	id, err := model.ParseIdentity(m.Who)
	if err != nil {
		return nil, err
	}
	ch := h.engine.Mutate(ctx, op, id)

	return func(result *Result) string {
		var res engine.MutationResult
		select {
		case res = <-ch:
		case <-time.After(DefaultTimeout):
			result.AddError(fmt.Sprintf("step %d: mutation did not complete", i))
			return "timeout"
		}
		select {
		case <-res.Reconciled:
		case <-time.After(DefaultTimeout):
			result.AddError(fmt.Sprintf("step %d: reconciliation did not complete", i))
		}

		kind := errorKind(res.Err)
		if kind != m.Error {
			result.AddError(fmt.Sprintf("step %d: %s %s: expected error %q, got %q (%v)",
				i, m.Op, m.Who, m.Error, kind, res.Err))
		}
		if res.Err != nil {
			return "error=" + kind
		}
		return fmt.Sprintf("ok op=%s id=%s shared=%t", res.Op, res.ID, res.Shared)
	}, nil
}

func (h *Harness) awaitAll(result *Result) {
	pending := h.pending
	h.pending = nil
	for _, wait := range pending {
		wait(result)
	}
}

func (h *Harness) waitCalls(op string, n int) bool {
	deadline := time.Now().Add(DefaultTimeout)
	for time.Now().Before(deadline) {
		if h.backend.Calls(op) >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

// resolve maps a scenario identity onto what the engine knows about it.
func (h *Harness) resolve(who string) (model.Identity, error) {
	id, err := model.ParseIdentity(who)
	if err != nil {
		return model.Identity{}, err
	}
	return h.engine.Store().Resolve(id), nil
}

func (h *Harness) check(e *Expect) []string {
	var errs []string
	snap := h.engine.Snapshot()
	for _, who := range slices.Sorted(maps.Keys(e.States)) {
		id, err := h.resolve(who)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if got := snap.State(id); got.String() != e.States[who] {
			errs = append(errs, fmt.Sprintf("%s: expected %s, got %s", who, e.States[who], got))
		}
	}
	if e.Counts != nil {
		errs = append(errs, compareCounts(*e.Counts, countsOf(snap))...)
	}
	for _, op := range slices.Sorted(maps.Keys(e.Calls)) {
		if got := h.backend.Calls(op); got != e.Calls[op] {
			errs = append(errs, fmt.Sprintf("calls %s: expected %d, got %d", op, e.Calls[op], got))
		}
	}
	return errs
}

func (h *Harness) final() FinalState {
	snap := h.engine.Snapshot()
	parts := map[string][]model.Record{
		"accepted":   snap.Accepted,
		"outgoing":   snap.Outgoing,
		"incoming":   snap.Incoming,
		"candidates": snap.Candidates,
	}
	fs := FinalState{
		Counts:     countsOf(snap),
		Partitions: make(map[string][]string, len(parts)),
		Calls:      make(map[string]int),
	}
	for name, recs := range parts {
		ids := make([]string, 0, len(recs))
		for _, r := range recs {
			ids = append(ids, r.Identity.String())
		}
		fs.Partitions[name] = ids
	}
	for _, req := range h.backend.Requests() {
		fs.Calls[req.Op]++
	}
	return fs
}

func countsOf(snap *store.Snapshot) FinalCounts {
	return FinalCounts{
		Pending:    len(snap.Incoming),
		Network:    len(snap.Accepted),
		Outgoing:   len(snap.Outgoing),
		Candidates: len(snap.Candidates),
	}
}

func backendError(f *FailStep) error {
	if f.Clear {
		return nil
	}
	switch f.Code {
	case "auth":
		return remote.NewAuthError(f.Op, f.Status, f.Message)
	case "conflict":
		return remote.NewConflictError(f.Op, f.Status, f.Message)
	default:
		return remote.NewTransportError(f.Op, f.Status, fmt.Errorf("%s", f.Message))
	}
}

// errorKind names the class of err the way scenarios spell it.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case engine.IsPrecondition(err):
		return "precondition"
	case remote.IsConflict(err):
		return "conflict"
	case remote.IsAuth(err):
		return "auth"
	case remote.IsTransport(err):
		return "transport"
	default:
		return "error"
	}
}

func describe(step Step) string {
	switch {
	case len(step.Refresh) > 0:
		return "refresh " + strings.Join(step.Refresh, ",")
	case step.Mutate != nil:
		return fmt.Sprintf("%s %s", step.Mutate.Op, step.Mutate.Who)
	case step.Backend != nil:
		return "backend " + strings.Join(slices.Sorted(maps.Keys(step.Backend)), ",")
	case step.Fail != nil:
		if step.Fail.Clear {
			return "clear " + step.Fail.Op
		}
		return fmt.Sprintf("fail %s %s", step.Fail.Op, step.Fail.Code)
	case step.Hold != "":
		return "hold " + step.Hold
	case step.Release != "":
		return "release " + step.Release
	case len(step.WaitCalls) > 0:
		parts := make([]string, 0, len(step.WaitCalls))
		for _, op := range slices.Sorted(maps.Keys(step.WaitCalls)) {
			parts = append(parts, fmt.Sprintf("%s=%d", op, step.WaitCalls[op]))
		}
		return "wait_calls " + strings.Join(parts, ",")
	case step.Await:
		return "await"
	default:
		return "expect"
	}
}
