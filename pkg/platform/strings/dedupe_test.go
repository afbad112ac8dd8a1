package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: nil},
		{name: "single confirmation", input: []string{"c1"}, expected: []string{"c1"}},
		{name: "repeated confirmation", input: []string{"c1", "c2", "c1"}, expected: []string{"c1", "c2"}},
		{name: "padded values", input: []string{" c1", "c1 "}, expected: []string{"c1"}},
		{name: "only blanks", input: []string{"", "  "}, expected: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DedupeAndTrim(tt.input))
		})
	}
}
