package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// OutcomeSnapshot is the golden-file form of a scenario run.
type OutcomeSnapshot struct {
	ScenarioName string        `json:"scenario_name"`
	Pass         bool          `json:"pass"`
	Steps        []StepOutcome `json:"steps"`
	Final        FinalState    `json:"final"`
}

// RunWithGolden executes a scenario and compares its outcome against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := json.MarshalIndent(OutcomeSnapshot{
		ScenarioName: scenarioName,
		Pass:         result.Pass,
		Steps:        result.Steps,
		Final:        result.Final,
	}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
