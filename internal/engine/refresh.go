package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/roach88/graphsync/internal/model"
	"github.com/roach88/graphsync/internal/normalize"
	"github.com/roach88/graphsync/internal/remote"
	"github.com/roach88/graphsync/internal/store"
)

// RefreshResult is delivered once per Refresh call.
type RefreshResult struct {
	Source model.Source

	// Records is the number of rows the normalizer produced.
	Records int

	// Shape is the payload shape the normalizer matched.
	Shape string

	// StartedAt is the store stamp taken before the fetch began.
	StartedAt int64

	// Seq is the snapshot sequence published by the merge (0 on failure).
	Seq int64

	// Shared is true when the refresh was delivered to more than one caller.
	Shared bool

	Err error
}

// RefreshState is the observable state of one source.
type RefreshState struct {
	InFlight        bool
	LastCompletedAt time.Time
	LastError       error
}

// Refresher runs per-source refreshes with at most one in flight per source.
type Refresher struct {
	client  remote.Client
	norm    *normalize.Normalizer
	store   *store.Store
	userID  int64
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	states  map[model.Source]*RefreshState
	waiting map[model.Source]int // Refresh calls not yet delivered
}

func newRefresher(client remote.Client, norm *normalize.Normalizer, st *store.Store, timeout time.Duration, logger *slog.Logger, now func() time.Time) *Refresher {
	return &Refresher{
		client:  client,
		norm:    norm,
		store:   st,
		userID:  st.Self().ID,
		timeout: timeout,
		logger:  logger,
		now:     now,
		states:  make(map[model.Source]*RefreshState),
		waiting: make(map[model.Source]int),
	}
}

// Refresh fetches src and merges it into the store. If a refresh of src is
// already running the call attaches to it; no second request is sent.
// Never blocks; the result arrives on the returned channel.
func (r *Refresher) Refresh(ctx context.Context, src model.Source) <-chan RefreshResult {
	out := make(chan RefreshResult, 1)
	if src.State() == model.StateNone {
		out <- RefreshResult{Source: src, Err: fmt.Errorf("refresh: unknown source %q", src)}
		return out
	}

	r.begin(src)
	ctx = context.WithoutCancel(ctx)
	ch := r.group.DoChan(string(src), func() (any, error) {
		return r.run(ctx, src), nil
	})
	go func() {
		res := <-ch
		rr := res.Val.(RefreshResult)
		rr.Shared = res.Shared
		r.done(src)
		out <- rr
	}()
	return out
}

// Reconcile makes sure each source is fetched at least once after since.
// A refresh already in flight that started before since is waited out and
// followed by a fresh one. The returned channel closes when all sources
// are done; results are available through State and the store.
func (r *Refresher) Reconcile(ctx context.Context, since int64, sources ...model.Source) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src model.Source) {
			defer wg.Done()
			res := <-r.Refresh(ctx, src)
			if res.Err == nil && res.StartedAt <= since {
				<-r.Refresh(ctx, src)
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// State returns a copy of the refresh state of src.
func (r *Refresher) State(src model.Source) RefreshState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[src]; ok {
		return *st
	}
	return RefreshState{}
}

// InFlight reports whether a refresh of src is running.
func (r *Refresher) InFlight(src model.Source) bool {
	return r.State(src).InFlight
}

func (r *Refresher) run(ctx context.Context, src model.Source) RefreshResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	startedAt := r.store.Stamp()
	res := RefreshResult{Source: src, StartedAt: startedAt}

	raw, err := r.fetch(ctx, src)
	if err != nil {
		r.logger.Warn("refresh failed",
			"source", src,
			"error", err,
		)
		res.Err = err
		r.finish(src, err)
		return res
	}

	norm := r.norm.Normalize(raw)
	snap := r.store.Merge(src, norm.Records, startedAt)
	res.Records = len(norm.Records)
	res.Shape = norm.Shape
	res.Seq = snap.Seq
	r.finish(src, nil)

	r.logger.Info("refresh merged",
		"source", src,
		"records", res.Records,
		"shape", res.Shape,
		"seq", res.Seq,
	)
	return res
}

func (r *Refresher) fetch(ctx context.Context, src model.Source) ([]byte, error) {
	switch src {
	case model.SourceNetwork:
		return r.client.Network(ctx, r.userID)
	case model.SourceIncoming:
		return r.client.FriendRequests(ctx, r.userID)
	case model.SourceOutgoing:
		return r.client.SentRequests(ctx, r.userID)
	case model.SourceEntrepreneurs, model.SourceMentors:
		return r.client.CandidatePool(ctx, src.CandidateKind())
	default:
		return nil, fmt.Errorf("refresh: unknown source %q", src)
	}
}

// begin marks src in flight before the request is issued, so InFlight
// is already true when Refresh returns. Joining callers count too.
func (r *Refresher) begin(src model.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[src]
	if !ok {
		st = &RefreshState{}
		r.states[src] = st
	}
	r.waiting[src]++
	st.InFlight = true
}

// done clears InFlight once the last caller waiting on src has its result.
func (r *Refresher) done(src model.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[src]--
	if r.waiting[src] == 0 {
		r.states[src].InFlight = false
	}
}

// finish records the outcome of one fetch.
func (r *Refresher) finish(src model.Source, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.states[src]
	st.LastError = err
	if err == nil {
		st.LastCompletedAt = r.now()
	}
}
