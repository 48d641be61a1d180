package harness

import "github.com/roach88/graphsync/internal/store"

// StepOutcome records what one step did. Outcomes of async steps are
// filled in when they are awaited.
type StepOutcome struct {
	Index   int    `json:"index"`
	Action  string `json:"action"`
	Outcome string `json:"outcome,omitempty"`
}

// FinalCounts are the badge counters without the sequence number, which
// depends on timing.
type FinalCounts struct {
	Pending    int `json:"pending"`
	Network    int `json:"network"`
	Outgoing   int `json:"outgoing"`
	Candidates int `json:"candidates"`
}

// FinalState is the engine and backend state after the last step.
type FinalState struct {
	Counts FinalCounts `json:"counts"`

	// Partitions lists identities per partition in snapshot order.
	Partitions map[string][]string `json:"partitions"`

	// Calls counts backend calls by operation.
	Calls map[string]int `json:"calls"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Steps []StepOutcome `json:"steps"`
	Final FinalState    `json:"final"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// changes is every store change published during the run, in order.
	changes []store.Change
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepOutcome{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
