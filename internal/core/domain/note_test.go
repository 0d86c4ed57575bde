package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNote_FirstField tests first-field extraction
func TestNote_FirstField(t *testing.T) {
	tests := []struct {
		name     string
		fields   []string
		expected string
	}{
		{
			name:     "two fields",
			fields:   []string{"front", "back"},
			expected: "front",
		},
		{
			name:     "single field",
			fields:   []string{"only"},
			expected: "only",
		},
		{
			name:     "no fields",
			fields:   nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Note{ID: 1, Fields: tt.fields}
			assert.Equal(t, tt.expected, n.FirstField())
		})
	}
}

// TestNote_LastField tests last-field extraction
func TestNote_LastField(t *testing.T) {
	tests := []struct {
		name     string
		fields   []string
		expected string
	}{
		{
			name:     "three fields",
			fields:   []string{"front", "middle", "back"},
			expected: "back",
		},
		{
			name:     "single field is both first and last",
			fields:   []string{"only"},
			expected: "only",
		},
		{
			name:     "no fields",
			fields:   []string{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Note{ID: 1, Fields: tt.fields}
			assert.Equal(t, tt.expected, n.LastField())
		})
	}
}
