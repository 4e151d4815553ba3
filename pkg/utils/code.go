package utils

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// SessionCodeAlphabet omits 0/O and 1/I so codes can be read aloud.
	SessionCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// SessionCodeLength is the number of characters in a session code.
	SessionCodeLength = 6
)

// NewSessionCode generates a session code. Collisions are detected by the
// session registry, not here.
func NewSessionCode() (string, error) {
	code, err := gonanoid.Generate(SessionCodeAlphabet, SessionCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate session code: %w", err)
	}
	return code, nil
}

// NormalizeSessionCode uppercases and trims user input.
func NormalizeSessionCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// IsSessionCodeFormat reports whether s has the shape of a session code.
func IsSessionCodeFormat(s string) bool {
	if len(s) != SessionCodeLength {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune(SessionCodeAlphabet, c) {
			return false
		}
	}
	return true
}
