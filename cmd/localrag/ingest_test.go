package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMetadataFlags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected map[string]string
	}{
		{
			name:     "empty",
			input:    nil,
			expected: nil,
		},
		{
			name:     "single_pair",
			input:    []string{"author=jane"},
			expected: map[string]string{"author": "jane"},
		},
		{
			name:     "multiple_pairs",
			input:    []string{"author=jane", "source=upload"},
			expected: map[string]string{"author": "jane", "source": "upload"},
		},
		{
			name:     "value_contains_equals",
			input:    []string{"query=a=b"},
			expected: map[string]string{"query": "a=b"},
		},
		{
			name:     "missing_equals_skipped",
			input:    []string{"no-equals-here", "author=jane"},
			expected: map[string]string{"author": "jane"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseMetadataFlags(tt.input))
		})
	}
}
