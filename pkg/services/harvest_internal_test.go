package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStagingPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		expected string
	}{
		{"Mesh workflow_42", "Mesh_workflow_42-"},
		{"../escape", ".._escape-"},
		{"", "galaxyflow-"},
		{"naïve", "na_ve-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, stagingPrefix(tt.name))
		})
	}
}
