package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/graphsync/internal/model"
)

// Precondition failures. Returned before any optimistic change or network
// call is made.
var (
	// ErrAlreadyConnected rejects a send to an accepted connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrAlreadyRequested rejects a send while an outgoing request exists.
	ErrAlreadyRequested = errors.New("request already sent")

	// ErrNoPendingRequest rejects accept/decline without an incoming request.
	ErrNoPendingRequest = errors.New("no pending request from identity")

	// ErrUnknownIdentity rejects identities the engine cannot address.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// PreconditionError records which identity failed which precondition.
type PreconditionError struct {
	Op       Op
	Identity model.Identity
	State    model.State
	Err      error
}

// Error implements the error interface.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s %s: %v (state=%s)", e.Op, e.Identity, e.Err, e.State)
}

// Unwrap exposes the sentinel so errors.Is works.
func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// IsPrecondition reports whether err is a precondition failure.
// Uses errors.As to handle wrapped errors.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

func preconditionFailed(op Op, id model.Identity, state model.State, err error) *PreconditionError {
	return &PreconditionError{Op: op, Identity: id, State: state, Err: err}
}
