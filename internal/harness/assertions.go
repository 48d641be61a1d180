package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/graphsync/internal/model"
	"github.com/roach88/graphsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes the change history to help debug the failure.
type AssertionError struct {
	Type     string         // Assertion type for categorization
	Expected string         // Human-readable expected outcome
	Actual   string         // Human-readable actual outcome
	Changes  []store.Change // Published changes for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Changes) > 0 {
		fmt.Fprintf(&buf, "\nChanges:\n")
		for _, c := range e.Changes {
			fmt.Fprintf(&buf, "  [%d] %s", c.Seq, c.Reason)
			if c.Source != "" {
				fmt.Fprintf(&buf, " %s", c.Source)
			}
			if !c.Identity.IsZero() {
				fmt.Fprintf(&buf, " %s", c.Identity)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, h *Harness) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a, h); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %s", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion, h *Harness) error {
	switch a.Type {
	case AssertCalls:
		if got := result.Final.Calls[a.Op]; got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s called %d times", a.Op, a.Count),
				Actual:   fmt.Sprintf("%d calls", got),
			}
		}

	case AssertState:
		id, err := h.resolve(a.Who)
		if err != nil {
			return err
		}
		if got := h.engine.Snapshot().State(id); got.String() != a.State {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s in %s", a.Who, a.State),
				Actual:   got.String(),
				Changes:  result.changes,
			}
		}

	case AssertCounts:
		if diffs := compareCounts(*a.Counts, result.Final.Counts); len(diffs) > 0 {
			return &AssertionError{
				Type:     a.Type,
				Expected: formatCounts(*a.Counts),
				Actual:   strings.Join(diffs, "; "),
			}
		}

	case AssertMerges:
		src, err := model.ParseSource(a.Source)
		if err != nil {
			return err
		}
		got := 0
		for _, c := range result.changes {
			if c.Reason == store.ReasonMerge && c.Source == src {
				got++
			}
		}
		if got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s merged %d times", a.Source, a.Count),
				Actual:   fmt.Sprintf("%d merges", got),
				Changes:  result.changes,
			}
		}

	case AssertNoFlicker:
		id, err := h.resolve(a.Who)
		if err != nil {
			return err
		}
		if seq, ok := reentered(result.changes, id, a.State); ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s never returns to %s", a.Who, a.State),
				Actual:   fmt.Sprintf("back in %s at seq %d", a.State, seq),
				Changes:  result.changes,
			}
		}

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// reentered reports the first change at which id went back into state
// after having left it.
func reentered(changes []store.Change, id model.Identity, state string) (int64, bool) {
	seen, left := false, false
	for _, c := range changes {
		if c.Snapshot.State(id).String() == state {
			if left {
				return c.Seq, true
			}
			seen = true
		} else if seen {
			left = true
		}
	}
	return 0, false
}

func compareCounts(want CountsSpec, got FinalCounts) []string {
	var diffs []string
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			diffs = append(diffs, fmt.Sprintf("%s: expected %d, got %d", name, *want, got))
		}
	}
	check("pending", want.Pending, got.Pending)
	check("network", want.Network, got.Network)
	check("outgoing", want.Outgoing, got.Outgoing)
	check("candidates", want.Candidates, got.Candidates)
	return diffs
}

func formatCounts(c CountsSpec) string {
	var parts []string
	add := func(name string, v *int) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%d", name, *v))
		}
	}
	add("pending", c.Pending)
	add("network", c.Network)
	add("outgoing", c.Outgoing)
	add("candidates", c.Candidates)
	return strings.Join(parts, " ")
}
