package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildHealthURL(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		port     string
		expected string
	}{
		{
			name:     "defaults",
			host:     "",
			port:     "",
			expected: "http://localhost:3001/health",
		},
		{
			name:     "wildcard host maps to localhost",
			host:     "0.0.0.0",
			port:     "8080",
			expected: "http://localhost:8080/health",
		},
		{
			name:     "explicit host",
			host:     "10.0.0.5",
			port:     "3001",
			expected: "http://10.0.0.5:3001/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildHealthURL(tt.host, tt.port))
		})
	}
}
