package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
name: minimal
description: "refresh one source"
steps:
  - refresh: [network]
assertions:
  - type: calls
    op: network
    count: 1
`

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, []string{"network"}, s.Steps[0].Refresh)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertCalls, s.Assertions[0].Type)
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "misspelled key"
steps:
  - refresh: [network]
assertion:
  - type: calls
    op: network
    count: 1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: "description: x\nsteps: [{await: true}]\nassertions: [{type: calls, op: send}]\n",
			want: "name is required",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: x\nassertions: [{type: calls, op: send}]\n",
			want: "steps list is required",
		},
		{
			name: "two actions in one step",
			yaml: "name: x\ndescription: x\nsteps: [{await: true, hold: send}]\nassertions: [{type: calls, op: send}]\n",
			want: "exactly one action",
		},
		{
			name: "async hold",
			yaml: "name: x\ndescription: x\nsteps: [{hold: send, async: true}]\nassertions: [{type: calls, op: send}]\n",
			want: "async only applies",
		},
		{
			name: "unknown source",
			yaml: "name: x\ndescription: x\nsteps: [{refresh: [inbox]}]\nassertions: [{type: calls, op: send}]\n",
			want: `unknown source "inbox"`,
		},
		{
			name: "unknown op",
			yaml: "name: x\ndescription: x\nsteps: [{mutate: {op: poke, who: '2'}}]\nassertions: [{type: calls, op: send}]\n",
			want: `unknown operation "poke"`,
		},
		{
			name: "unknown error kind",
			yaml: "name: x\ndescription: x\nsteps: [{mutate: {op: send, who: '2', error: boom}}]\nassertions: [{type: calls, op: send}]\n",
			want: `unknown error kind "boom"`,
		},
		{
			name: "unknown state",
			yaml: "name: x\ndescription: x\nsteps: [{await: true}]\nassertions: [{type: state, who: '2', state: Friends}]\n",
			want: `unknown state "Friends"`,
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: x\nsteps: [{await: true}]\nassertions: [{type: vibes}]\n",
			want: `unknown assertion type "vibes"`,
		},
		{
			name: "counts without counts",
			yaml: "name: x\ndescription: x\nsteps: [{await: true}]\nassertions: [{type: counts}]\n",
			want: "counts is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadDir_SortedByFileName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml"} {
		body := []byte("name: " + name + "\n" + minimal[len("\nname: minimal\n"):])
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), body, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "a.yaml", scenarios[0].Name)
	assert.Equal(t, "b.yaml", scenarios[1].Name)
}
