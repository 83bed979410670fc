package utils

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	// PickupCodeAlphabet matches the four buttons on the box keypad
	PickupCodeAlphabet = "1234"
	PickupCodeLength   = 4
)

// GeneratePickupCode generates a 4-character code drawn from PickupCodeAlphabet
func GeneratePickupCode() (string, error) {
	b := make([]byte, PickupCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random pickup code: %w", err)
	}

	var builder strings.Builder
	for _, v := range b {
		// 256 is a multiple of 4, so the modulo is unbiased
		builder.WriteByte(PickupCodeAlphabet[int(v)%len(PickupCodeAlphabet)])
	}
	return builder.String(), nil
}

// IsValidPickupCode checks length and alphabet of a pickup code
func IsValidPickupCode(code string) bool {
	if len(code) != PickupCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(PickupCodeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}

// NormalizeRedID trims the identifier and strips any internal whitespace
func NormalizeRedID(redID string) string {
	return strings.Join(strings.Fields(redID), "")
}

// IsValidEmail is the same loose check the admin form applies
func IsValidEmail(addr string) bool {
	addr = strings.TrimSpace(addr)
	at := strings.IndexByte(addr, '@')
	return at > 0 && at < len(addr)-1
}
