package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Steps, len(s.Steps))
		})
	}
}

func TestRun_ReportsFailedExpectation(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_expectation
description: "expects a request that is not there"
backend:
  network: '[{"id": 2, "email": "ada@example.com"}]'
steps:
  - refresh: [network]
  - expect:
      states: { "2": IncomingPending }
assertions:
  - type: calls
    op: network
    count: 2
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "step 1: 2: expected IncomingPending, got Accepted")
	assert.Contains(t, result.Errors[1], "assertion 0")
	assert.Contains(t, result.Errors[1], "network called 2 times")
}

func TestRun_UnexpectedMutationError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unexpected_error
description: "accept without a request"
steps:
  - mutate: { op: accept, who: "2" }
assertions:
  - type: calls
    op: accept
    count: 0
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `expected error "", got "precondition"`)
	assert.Equal(t, "error=precondition", result.Steps[0].Outcome)
}

func TestRun_ReleaseWithoutHold(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_release
description: "release of an operation nobody held"
steps:
  - release: accept
assertions:
  - type: calls
    op: accept
    count: 0
`))
	require.NoError(t, err)

	_, err = Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 0: release accept: not held")
}

func TestRun_LeftoverHoldsAreReleased(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: leftover_hold
description: "a held refresh is let go before the run finishes"
backend:
  network: '[{"id": 2, "email": "ada@example.com"}]'
steps:
  - hold: network
  - refresh: [network]
    async: true
assertions:
  - type: merges
    source: network
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "network=1 (array)", result.Steps[1].Outcome)
}

func TestRun_CustomUser(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: custom_user
description: "the configured user is excluded from candidate pools"
user: { id: 9, email: nine@example.com }
backend:
  candidates:mentors: '[{"id": 9, "email": "nine@example.com"}, {"id": 2, "email": "ada@example.com"}]'
steps:
  - refresh: [mentors]
assertions:
  - type: counts
    counts: { candidates: 1 }
  - type: state
    who: "9"
    state: None
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"2 <ada@example.com>"}, result.Final.Partitions["candidates"])
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertState,
		Expected: "2 in Accepted",
		Actual:   "IncomingPending",
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: state")
	assert.Contains(t, msg, "Expected: 2 in Accepted")
	assert.Contains(t, msg, "Actual: IncomingPending")
	assert.NotContains(t, msg, "Changes:")
}
