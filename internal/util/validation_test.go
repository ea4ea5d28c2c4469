package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"jane@example.com", true},
		{"jane.doe+support@mail.example.org", true},
		{"", false},
		{"jane", false},
		{"jane@localhost", false},
		{"Jane <jane@example.com>", false},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValidEmail(tc.in))
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone(""))
	assert.True(t, IsValidPhone("+95 9 123 456 789"))
	assert.False(t, IsValidPhone("call me"))
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID("4f1d2c7e-8a7b-4c1e-9d3a-1b2c3d4e5f60"))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID(""))
}

func TestIsValidEnum(t *testing.T) {
	valid := []string{"ACTIVE", "RESOLVED", "CLOSED"}
	assert.True(t, IsValidEnum("", valid))
	assert.True(t, IsValidEnum("RESOLVED", valid))
	assert.False(t, IsValidEnum("PENDING", valid))
}
