package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/graphsync/internal/engine"
	"github.com/roach88/graphsync/internal/model"
)

// Scenario defines a sync scenario: an initial backend, a sequence of
// steps and the assertions that must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the current user. Defaults to id 1, me@example.com.
	User *UserSpec `yaml:"user,omitempty"`

	// Backend holds the initial read payloads by operation name.
	Backend map[string]string `yaml:"backend,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

type UserSpec struct {
	ID    int64  `yaml:"id"`
	Email string `yaml:"email"`
}

// Step performs exactly one action.
type Step struct {
	Refresh   []string          `yaml:"refresh,omitempty"`
	Mutate    *MutateStep       `yaml:"mutate,omitempty"`
	Backend   map[string]string `yaml:"backend,omitempty"`
	Fail      *FailStep         `yaml:"fail,omitempty"`
	Hold      string            `yaml:"hold,omitempty"`
	Release   string            `yaml:"release,omitempty"`
	WaitCalls map[string]int    `yaml:"wait_calls,omitempty"`
	Await     bool              `yaml:"await,omitempty"`
	Expect    *Expect           `yaml:"expect,omitempty"`

	// Async starts a refresh or mutation without waiting for it.
	Async bool `yaml:"async,omitempty"`
}

// MutateStep runs one mutation.
type MutateStep struct {
	Op  string `yaml:"op"`
	Who string `yaml:"who"`

	// Error is the expected failure kind: precondition, conflict, auth,
	// transport. Empty expects success.
	Error string `yaml:"error,omitempty"`
}

// FailStep configures a backend failure.
type FailStep struct {
	Op      string `yaml:"op"`
	Code    string `yaml:"code,omitempty"` // transport | auth | conflict
	Status  int    `yaml:"status,omitempty"`
	Message string `yaml:"message,omitempty"`
	Clear   bool   `yaml:"clear,omitempty"`
}

// Expect checks the engine at one point of the flow.
type Expect struct {
	// States maps an identity ("42" or an email) to a state name.
	States map[string]string `yaml:"states,omitempty"`
	Counts *CountsSpec       `yaml:"counts,omitempty"`
	Calls  map[string]int    `yaml:"calls,omitempty"`
}

// CountsSpec is a subset match on badge counters.
type CountsSpec struct {
	Pending    *int `yaml:"pending,omitempty"`
	Network    *int `yaml:"network,omitempty"`
	Outgoing   *int `yaml:"outgoing,omitempty"`
	Candidates *int `yaml:"candidates,omitempty"`
}

// Assertion validates the outcome after all steps ran.
type Assertion struct {
	// Type specifies the assertion type:
	// - "calls": Op was called exactly Count times
	// - "state": Who ends in State
	// - "counts": final counters match Counts
	// - "merges": Source was merged exactly Count times
	// - "no_flicker": Who never re-entered State after leaving it
	Type string `yaml:"type"`

	Op     string      `yaml:"op,omitempty"`
	Who    string      `yaml:"who,omitempty"`
	State  string      `yaml:"state,omitempty"`
	Source string      `yaml:"source,omitempty"`
	Count  int         `yaml:"count,omitempty"`
	Counts *CountsSpec `yaml:"counts,omitempty"`
}

// Assertion type constants.
const (
	AssertCalls     = "calls"
	AssertState     = "state"
	AssertCounts    = "counts"
	AssertMerges    = "merges"
	AssertNoFlicker = "no_flicker"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step Step) error {
	actions := 0
	for _, set := range []bool{
		len(step.Refresh) > 0,
		step.Mutate != nil,
		step.Backend != nil,
		step.Fail != nil,
		step.Hold != "",
		step.Release != "",
		len(step.WaitCalls) > 0,
		step.Await,
		step.Expect != nil,
	} {
		if set {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("exactly one action is required, found %d", actions)
	}
	if step.Async && len(step.Refresh) == 0 && step.Mutate == nil {
		return fmt.Errorf("async only applies to refresh and mutate")
	}

	for _, src := range step.Refresh {
		if _, err := model.ParseSource(src); err != nil {
			return err
		}
	}
	if m := step.Mutate; m != nil {
		if _, err := engine.ParseOp(m.Op); err != nil {
			return err
		}
		if m.Who == "" {
			return fmt.Errorf("mutate: who is required")
		}
		if m.Error != "" && !validErrorKind(m.Error) {
			return fmt.Errorf("mutate: unknown error kind %q", m.Error)
		}
	}
	if f := step.Fail; f != nil {
		if f.Op == "" {
			return fmt.Errorf("fail: op is required")
		}
		if !f.Clear && !validErrorKind(f.Code) {
			return fmt.Errorf("fail: unknown code %q", f.Code)
		}
	}
	if e := step.Expect; e != nil {
		for who, st := range e.States {
			if _, ok := model.ParseState(st); !ok {
				return fmt.Errorf("expect: unknown state %q for %s", st, who)
			}
		}
	}
	return nil
}

func validErrorKind(kind string) bool {
	switch kind {
	case "transport", "auth", "conflict", "precondition":
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertCalls:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for calls", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for calls", index)
		}
	case AssertState, AssertNoFlicker:
		if a.Who == "" {
			return fmt.Errorf("assertions[%d]: who is required for %s", index, a.Type)
		}
		if _, ok := model.ParseState(a.State); !ok {
			return fmt.Errorf("assertions[%d]: unknown state %q", index, a.State)
		}
	case AssertCounts:
		if a.Counts == nil {
			return fmt.Errorf("assertions[%d]: counts is required for counts", index)
		}
	case AssertMerges:
		if _, err := model.ParseSource(a.Source); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
