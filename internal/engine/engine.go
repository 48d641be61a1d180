package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/graphsync/internal/badge"
	"github.com/roach88/graphsync/internal/model"
	"github.com/roach88/graphsync/internal/normalize"
	"github.com/roach88/graphsync/internal/remote"
	"github.com/roach88/graphsync/internal/store"
)

// DefaultRequestTimeout bounds each backend call made by the engine.
const DefaultRequestTimeout = 15 * time.Second

// Engine keeps the connection graph of one user in sync with the backend.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - Refresh and Mutate return at once; results arrive on a channel
//   - store writes are serialized inside the store
//
// Construct one Engine per user session and share it.
type Engine struct {
	store     *store.Store
	refresher *Refresher
	mutator   *Mutator
	sources   []model.Source
	logger    *slog.Logger
}

type options struct {
	logger     *slog.Logger
	timeout    time.Duration
	sources    []model.Source
	ids        IDGenerator
	normalizer *normalize.Normalizer
	clock      *store.Clock
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger used by the engine and its store.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithRequestTimeout bounds each backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithSources limits RefreshAll to the given sources.
func WithSources(sources ...model.Source) Option {
	return func(o *options) {
		o.sources = sources
	}
}

// WithIDGenerator replaces the mutation id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithNormalizer replaces the response normalizer.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *options) {
		o.normalizer = n
	}
}

// WithClock replaces the store's logical clock.
func WithClock(c *store.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithNow replaces the wall clock used for RefreshState timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates an engine for the user self. self must carry the backend id;
// the email is used to keep the user out of candidate lists.
func New(client remote.Client, self model.Identity, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, errors.New("engine: nil client")
	}
	if self.ID <= 0 {
		return nil, errors.New("engine: current user id is required")
	}

	o := options{
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
		sources: model.AllSources,
		ids:     UUIDv7Generator{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = DefaultRequestTimeout
	}
	if o.normalizer == nil {
		o.normalizer = normalize.New(normalize.WithLogger(o.logger))
	}

	storeOpts := []store.Option{store.WithLogger(o.logger)}
	if o.clock != nil {
		storeOpts = append(storeOpts, store.WithClock(o.clock))
	}
	st := store.New(self, storeOpts...)
	r := newRefresher(client, o.normalizer, st, o.timeout, o.logger, o.now)

	return &Engine{
		store:     st,
		refresher: r,
		mutator:   newMutator(client, st, r, o.ids, o.timeout, o.logger),
		sources:   slices.Clone(o.sources),
		logger:    o.logger,
	}, nil
}

// Store exposes the underlying graph store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Sources returns the sources RefreshAll refreshes.
func (e *Engine) Sources() []model.Source {
	return slices.Clone(e.sources)
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() *store.Snapshot {
	return e.store.Snapshot()
}

// Classify returns the relationship between the current user and id.
func (e *Engine) Classify(id model.Identity) model.State {
	return e.store.Classify(id)
}

// Counts projects badge counters from the latest snapshot.
func (e *Engine) Counts() badge.Counts {
	return badge.Project(e.store.Snapshot())
}

// Refresh fetches one source. See Refresher.Refresh.
func (e *Engine) Refresh(ctx context.Context, src model.Source) <-chan RefreshResult {
	return e.refresher.Refresh(ctx, src)
}

// RefreshAll refreshes every configured source concurrently and waits for
// all of them. Results are in source order. The returned error is the first
// failure; the other sources still complete.
func (e *Engine) RefreshAll(ctx context.Context) ([]RefreshResult, error) {
	results := make([]RefreshResult, len(e.sources))
	var g errgroup.Group
	for i, src := range e.sources {
		ch := e.refresher.Refresh(ctx, src)
		g.Go(func() error {
			select {
			case res := <-ch:
				results[i] = res
				return res.Err
			case <-ctx.Done():
				results[i] = RefreshResult{Source: src, Err: ctx.Err()}
				return ctx.Err()
			}
		})
	}
	err := g.Wait()
	return results, err
}

// RefreshState reports the refresh state of src.
func (e *Engine) RefreshState(src model.Source) RefreshState {
	return e.refresher.State(src)
}

// InFlight reports whether src is being refreshed.
func (e *Engine) InFlight(src model.Source) bool {
	return e.refresher.InFlight(src)
}

// Mutate runs op against id. See Mutator.Mutate.
func (e *Engine) Mutate(ctx context.Context, op Op, id model.Identity) <-chan MutationResult {
	return e.mutator.Mutate(ctx, op, id)
}

// Send requests a connection with id.
func (e *Engine) Send(ctx context.Context, id model.Identity) <-chan MutationResult {
	return e.Mutate(ctx, OpSend, id)
}

// Accept accepts id's pending request.
func (e *Engine) Accept(ctx context.Context, id model.Identity) <-chan MutationResult {
	return e.Mutate(ctx, OpAccept, id)
}

// Decline declines id's pending request.
func (e *Engine) Decline(ctx context.Context, id model.Identity) <-chan MutationResult {
	return e.Mutate(ctx, OpDecline, id)
}

// Subscribe registers a store change listener. See store.Store.Subscribe.
func (e *Engine) Subscribe(buffer int) (<-chan store.Change, func()) {
	return e.store.Subscribe(buffer)
}

// WatchCounts streams badge counters whenever a total changes.
func (e *Engine) WatchCounts(buffer int) (<-chan badge.Counts, func()) {
	changes, cancel := e.store.Subscribe(buffer)
	return badge.Watch(changes), cancel
}
