package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePickupCode(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GeneratePickupCode()
		require.NoError(t, err)
		require.Len(t, code, PickupCodeLength)
		for _, r := range code {
			assert.Contains(t, []rune{'1', '2', '3', '4'}, r)
		}
		assert.True(t, IsValidPickupCode(code))
	}
}

func TestIsValidPickupCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"1234", true},
		{"4444", true},
		{"1235", false},
		{"123", false},
		{"12341", false},
		{"", false},
		{"abcd", false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidPickupCode(tt.code))
		})
	}
}

func TestNormalizeRedID(t *testing.T) {
	assert.Equal(t, "123456789", NormalizeRedID("  123 456\t789 "))
	assert.Equal(t, "", NormalizeRedID("   "))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("owner@example.edu"))
	assert.False(t, IsValidEmail("owner"))
	assert.False(t, IsValidEmail("@example.edu"))
	assert.False(t, IsValidEmail("owner@"))
}
