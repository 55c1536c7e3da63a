package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		arg  string
		name string
		keys []string
	}{
		{"systems", "systems", nil},
		{"events:A,B", "events", []string{"A", "B"}},
		{"commands:S1", "commands", []string{"S1"}},
		{"licenses:", "licenses", nil},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, keys := parseTarget(tt.arg)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.keys, keys)
		})
	}
}
