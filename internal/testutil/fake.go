package testutil

import (
	"context"
	"slices"
	"sync"
)

// Operation names recorded by FakeClient. Read operations use the
// source names of the graph they feed.
const (
	OpNetwork        = "network"
	OpFriendRequests = "incoming"
	OpSentRequests   = "outgoing"
	OpSend           = "send"
	OpAccept         = "accept"
	OpDecline        = "decline"
)

// CandidateOp returns the operation name for a candidate pool read.
func CandidateOp(kind string) string {
	return "candidates:" + kind
}

// Request is one call received by FakeClient.
type Request struct {
	Op     string
	UserID int64
	Email  string
}

// FakeClient is an in-memory remote.Client.
//
// Reads return the payload configured with SetPayload ("[]" by default).
// Any operation can be made to fail with SetError or held in flight with
// Hold. The payload and error are captured when the call arrives, before
// a hold is waited out, the way a server answers from the state it saw.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClient struct {
	mu       sync.Mutex
	payloads map[string][]byte
	errs     map[string]error
	gates    map[string]chan struct{}
	calls    map[string]int
	requests []Request
	hook     func(Request)
}

// NewFakeClient creates a client with no payloads configured.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		payloads: make(map[string][]byte),
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

// SetPayload sets the body returned by a read operation.
func (f *FakeClient) SetPayload(op, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[op] = []byte(body)
}

// SetError makes op fail with err until cleared with a nil err.
func (f *FakeClient) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Hold blocks calls to op until the returned release func is called.
// Release is idempotent.
func (f *FakeClient) Hold(op string) (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[op] = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gates[op] == gate {
				delete(f.gates, op)
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// OnSuccess registers a func called after each successful mutation, used
// to update read payloads the way the backend would.
func (f *FakeClient) OnSuccess(hook func(Request)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Calls returns how many times op was invoked.
func (f *FakeClient) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Requests returns every call received, in arrival order.
func (f *FakeClient) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

func (f *FakeClient) Network(ctx context.Context, userID int64) ([]byte, error) {
	return f.read(ctx, Request{Op: OpNetwork, UserID: userID})
}

func (f *FakeClient) FriendRequests(ctx context.Context, userID int64) ([]byte, error) {
	return f.read(ctx, Request{Op: OpFriendRequests, UserID: userID})
}

func (f *FakeClient) SentRequests(ctx context.Context, userID int64) ([]byte, error) {
	return f.read(ctx, Request{Op: OpSentRequests, UserID: userID})
}

func (f *FakeClient) CandidatePool(ctx context.Context, kind string) ([]byte, error) {
	return f.read(ctx, Request{Op: CandidateOp(kind)})
}

func (f *FakeClient) SendFriendRequest(ctx context.Context, userID int64, receiverEmail string) error {
	return f.mutate(ctx, Request{Op: OpSend, UserID: userID, Email: receiverEmail})
}

func (f *FakeClient) AcceptFriendRequest(ctx context.Context, senderEmail string, receiverID int64) error {
	return f.mutate(ctx, Request{Op: OpAccept, UserID: receiverID, Email: senderEmail})
}

func (f *FakeClient) DeclineFriendRequest(ctx context.Context, senderEmail string, receiverID int64) error {
	return f.mutate(ctx, Request{Op: OpDecline, UserID: receiverID, Email: senderEmail})
}

func (f *FakeClient) read(ctx context.Context, req Request) ([]byte, error) {
	body, gate, err := f.record(req)
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if body == nil {
		return []byte("[]"), nil
	}
	return body, nil
}

func (f *FakeClient) mutate(ctx context.Context, req Request) error {
	_, gate, err := f.record(req)
	if err := wait(ctx, gate); err != nil {
		return err
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(req)
	}
	return nil
}

func (f *FakeClient) record(req Request) ([]byte, chan struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Op]++
	f.requests = append(f.requests, req)
	return slices.Clone(f.payloads[req.Op]), f.gates[req.Op], f.errs[req.Op]
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
