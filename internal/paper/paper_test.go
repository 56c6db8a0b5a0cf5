package paper

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	p, err := LoadFile("testdata/physics.yaml")
	require.NoError(t, err)

	assert.Equal(t, "phy-101", p.ID)
	assert.Equal(t, 300, p.TimeLimitSeconds)
	require.Len(t, p.Questions, 2)
	assert.Equal(t, "Newton", p.Questions[0].Options[0].Text)
	assert.Equal(t, 0.5, p.Questions[0].NegativeMarks)
	assert.Len(t, p.Questions[1].Options, 2)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "time_limit_seconds: 10\n", "missing id"},
		{"no limit", "id: p\n", "time_limit_seconds"},
		{"one option", `
id: p
time_limit_seconds: 10
questions:
  - id: q1
    options: [{label: A}]
    correct_option: A
`, "1 options"},
		{"five options", `
id: p
time_limit_seconds: 10
questions:
  - id: q1
    options: [{label: A}, {label: B}, {label: C}, {label: D}, {label: E}]
    correct_option: A
`, "5 options"},
		{"correct not an option", `
id: p
time_limit_seconds: 10
questions:
  - id: q1
    options: [{label: A}, {label: B}]
    correct_option: C
`, "not an option"},
		{"duplicate ids", `
id: p
time_limit_seconds: 10
questions:
  - {id: q1, options: [{label: A}, {label: B}], correct_option: A}
  - {id: q1, options: [{label: A}, {label: B}], correct_option: A}
`, "duplicate"},
		{"unknown field", "id: p\ntime_limit_seconds: 10\nshuffle: true\n", "shuffle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
