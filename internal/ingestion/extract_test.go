package ingestion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractArrays(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "single array",
			input: `[{"a":1}]`,
			want:  []string{`[{"a":1}]`},
		},
		{
			name:  "one per line",
			input: "[1]\n[2]\n",
			want:  []string{"[1]", "[2]"},
		},
		{
			name:  "same line",
			input: "[1][2]",
			want:  []string{"[1]", "[2]"},
		},
		{
			name:  "surrounding noise",
			input: "lote 1: [1, 2] e depois ] lote 2: [3]",
			want:  []string{"[1, 2]", "[3]"},
		},
		{
			name:  "brackets inside strings",
			input: `[{"symbol":"A]B["}] [{"symbol":"x\"]"}]`,
			want:  []string{`[{"symbol":"A]B["}]`, `[{"symbol":"x\"]"}]`},
		},
		{
			name:  "nested arrays",
			input: `[[1],[2,[3]]]`,
			want:  []string{`[[1],[2,[3]]]`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractArrays(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractArraysNoArrays(t *testing.T) {
	for _, input := range []string{"", "   \n", `{"operation":"buy"}`, "]]"} {
		_, err := ExtractArrays(input)
		assert.ErrorIs(t, err, ErrNoArrays, "input %q", input)
		assert.Equal(t, "No valid JSON arrays found in input", err.Error())
	}
}

func TestExtractArraysInvalidJSON(t *testing.T) {
	_, err := ExtractArrays("[1]\n[1,,2]")
	require.Error(t, err)

	var ie *InputError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 2, ie.Batch)
	assert.Equal(t, "Invalid JSON array at position 2", err.Error())
}

func TestExtractArraysUnterminated(t *testing.T) {
	_, err := ExtractArrays("[1]\n[2, 3")
	assert.EqualError(t, err, "Invalid JSON array at position 2")
}
