package random

import (
	"strings"
	"testing"
)

func TestNewSecretLengthAndCharset(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		secret, err := NewSecret()
		if err != nil {
			t.Fatalf("new secret: %v", err)
		}
		if len(secret) != 20 {
			t.Fatalf("expected 20-char secret, got %d (%q)", len(secret), secret)
		}
		if strings.ContainsAny(secret, "+/=") {
			t.Fatalf("secret not URL-safe: %q", secret)
		}
		if seen[secret] {
			t.Fatalf("duplicate secret generated: %q", secret)
		}
		seen[secret] = true
	}
}

func TestNewVerificationCode(t *testing.T) {
	code, err := NewVerificationCode(6)
	if err != nil {
		t.Fatalf("new code: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}

	if _, err := NewVerificationCode(3); err == nil {
		t.Fatal("expected error for too few digits")
	}
	if _, err := NewVerificationCode(11); err == nil {
		t.Fatal("expected error for too many digits")
	}
}

func TestNewRecoveryCodeFormat(t *testing.T) {
	code, err := NewRecoveryCode()
	if err != nil {
		t.Fatalf("new recovery code: %v", err)
	}

	groups := strings.Split(code, "-")
	if len(groups) != 4 {
		t.Fatalf("expected 4 groups, got %q", code)
	}
	for _, g := range groups {
		if len(g) != 4 {
			t.Fatalf("expected 4-char groups, got %q", code)
		}
		if strings.ContainsAny(g, "OI") {
			t.Fatalf("ambiguous character in recovery code %q", code)
		}
	}
}

func TestNormalizeRecoveryCode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"x7pm-2q9f", "X7PM2Q9F"},
		{"  X7PM 2Q9F  ", "X7PM2Q9F"},
		{"xOpm-2qIf", "X0PM2Q1F"},
		{"o0o0-iIiI", "00001111"},
	}
	for _, c := range cases {
		if got := NormalizeRecoveryCode(c.in); got != c.want {
			t.Errorf("NormalizeRecoveryCode(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	// Normalized form of a generated code round-trips to itself minus dashes.
	code, err := NewRecoveryCode()
	if err != nil {
		t.Fatalf("new recovery code: %v", err)
	}
	want := strings.ReplaceAll(code, "-", "")
	if got := NormalizeRecoveryCode(code); got != want {
		t.Errorf("normalized generated code %q = %q, want %q", code, got, want)
	}
}
