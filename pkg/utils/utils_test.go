package utils

import (
	"strings"
	"testing"
)

func TestNewSessionCodeAlphabet(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := NewSessionCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != SessionCodeLength {
			t.Fatalf("expected length %d, got %q", SessionCodeLength, code)
		}
		if strings.ContainsAny(code, "01OI") {
			t.Fatalf("ambiguous character in %q", code)
		}
		if !IsSessionCodeFormat(code) {
			t.Fatalf("generated code %q fails format check", code)
		}
	}
}

func TestAlphabetSize(t *testing.T) {
	if len(SessionCodeAlphabet) != 32 {
		t.Fatalf("expected 32 symbols, got %d", len(SessionCodeAlphabet))
	}
}

func TestIsSessionCodeFormat(t *testing.T) {
	cases := map[string]bool{
		"ABC234":  true,
		"abc234":  false,
		"ABC23":   false,
		"ABC2340": false,
		"ABCO23":  false,
		"":        false,
	}
	for in, want := range cases {
		if got := IsSessionCodeFormat(in); got != want {
			t.Fatalf("IsSessionCodeFormat(%q) = %v, want %v", in, got, want)
		}
	}
	if NormalizeSessionCode(" abc234 ") != "ABC234" {
		t.Fatalf("normalize failed")
	}
}

func TestResumeKeyHashing(t *testing.T) {
	key, err := NewResumeKey()
	if err != nil {
		t.Fatalf("resume key: %v", err)
	}
	hash, err := HashSecret(key)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckSecret(key, hash) {
		t.Fatalf("expected key to match")
	}
	if CheckSecret(key+"x", hash) || CheckSecret(key, "") {
		t.Fatalf("expected mismatch")
	}
}
