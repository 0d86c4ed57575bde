package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrEmbeddingUnavailable", ErrEmbeddingUnavailable},
		{"ErrRerankUnavailable", ErrRerankUnavailable},
		{"ErrNoVector", ErrNoVector},
		{"ErrDimensionMismatch", ErrDimensionMismatch},
		{"ErrRateLimited", ErrRateLimited},
		{"ErrBuildInProgress", ErrBuildInProgress},
		{"ErrNoUsableDocuments", ErrNoUsableDocuments},
		{"ErrClusterFailed", ErrClusterFailed},
		{"ErrHierarchyIntegrity", ErrHierarchyIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

// TestErrors_Distinct tests that sentinel errors do not match each other
func TestErrors_Distinct(t *testing.T) {
	assert.False(t, errors.Is(ErrNotFound, ErrInvalidInput))
	assert.False(t, errors.Is(ErrNoVector, ErrDimensionMismatch))
	assert.False(t, errors.Is(ErrClusterFailed, ErrHierarchyIntegrity))
}

// TestErrors_Wrapping tests that wrapped sentinels survive errors.Is
func TestErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("build topic map: %w", ErrNoUsableDocuments)
	assert.True(t, errors.Is(wrapped, ErrNoUsableDocuments))
	assert.False(t, errors.Is(wrapped, ErrClusterFailed))

	doubly := fmt.Errorf("cli: %w", wrapped)
	assert.True(t, errors.Is(doubly, ErrNoUsableDocuments))
}
