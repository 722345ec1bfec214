package identity

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestUsernameBase(t *testing.T) {
	cases := map[string]string{
		"jane.doe@example.com":   "jane.doe",
		"  sample@example.com  ": "sample",
		"odd@name@example.com":   "odd",
		"no-at-sign":             "no-at-sign",
		"@example.com":           fallbackUsername,
	}
	for email, expected := range cases {
		if actual := usernameBase(email); actual != expected {
			t.Fatalf("usernameBase(%q) = %q, want %q", email, actual, expected)
		}
	}
}

func TestUsernameCandidateAppendsIncreasingSuffix(t *testing.T) {
	expected := []string{"jane.doe", "jane.doe1", "jane.doe2", "jane.doe3"}
	for n, want := range expected {
		if actual := usernameCandidate("jane.doe", n); actual != want {
			t.Fatalf("candidate %d = %q, want %q", n, actual, want)
		}
	}
}

func TestUsernameCandidateKeepsSuffixWithinLimit(t *testing.T) {
	base := strings.Repeat("x", maxUsernameLength+10)
	candidate := usernameCandidate(base, 42)
	if len(candidate) != maxUsernameLength {
		t.Fatalf("expected %d characters, got %d", maxUsernameLength, len(candidate))
	}
	if !strings.HasSuffix(candidate, "42") {
		t.Fatalf("expected suffix to survive truncation, got %q", candidate[len(candidate)-5:])
	}
}

func TestUsernameCandidateTruncatesOnRuneBoundary(t *testing.T) {
	base := strings.Repeat("ü", maxUsernameLength)
	for _, n := range []int{0, 7, 42} {
		candidate := usernameCandidate(base, n)
		if !utf8.ValidString(candidate) {
			t.Fatalf("candidate %d is not valid UTF-8: %q", n, candidate)
		}
		if len(candidate) > maxUsernameLength {
			t.Fatalf("candidate %d has %d bytes, limit is %d", n, len(candidate), maxUsernameLength)
		}
	}
	if candidate := usernameCandidate(base, 7); !strings.HasSuffix(candidate, "ü7") {
		t.Fatalf("expected suffix after the last whole rune, got %q", candidate)
	}
}
