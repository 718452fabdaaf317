package domain

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM \t"); got != "user@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"u@test.com", true},
		{" U@Test.com ", true},
		{"", false},
		{"   ", false},
		{"no-at.example.com", false},
		{"two words@test.com", false},
		{"u@nodot", false},
	}

	for _, tt := range tests {
		if got := ValidEmail(tt.in); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
