package hash

import (
	"strings"
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	// Known SHA256 of "hello"
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	got := SHA256Hex("hello")
	if got != want {
		t.Errorf("SHA256Hex(\"hello\") = %s, want %s", got, want)
	}
}

func TestSHA256Hex_Empty(t *testing.T) {
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	got := SHA256Hex("")
	if got != want {
		t.Errorf("SHA256Hex(\"\") = %s, want %s", got, want)
	}
}

func TestPrefix(t *testing.T) {
	full := SHA256Hex("192.168.1.1")

	tests := []struct {
		name string
		n    int
		want string
	}{
		{"12 char prefix", 12, full[:12]},
		{"4 char prefix", 4, full[:4]},
		{"full hash if prefix too long", 100, full},
		{"full hash if negative", -1, full},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Prefix("192.168.1.1", tt.n)
			if got != tt.want {
				t.Errorf("Prefix(%d) = %s, want %s", tt.n, got, tt.want)
			}
		})
	}
}

func TestRedact(t *testing.T) {
	if got := Redact(""); got != "" {
		t.Errorf("Redact(\"\") = %q, want empty", got)
	}

	got := Redact("oauth-token-value")
	if !strings.HasPrefix(got, "sha256:") || len(got) != len("sha256:")+8 {
		t.Errorf("Redact = %q, want sha256:<8 hex>", got)
	}
	if strings.Contains(got, "oauth") {
		t.Error("Redact leaked the secret")
	}
	if got != Redact("oauth-token-value") {
		t.Error("Redact should be deterministic")
	}
}
