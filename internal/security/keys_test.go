package security

import "testing"

func TestValidateSigningKey(t *testing.T) {
	if err := ValidateSigningKey([]byte("0123456789abcdef0123456789abcdef")); err != nil {
		t.Fatalf("32-byte key should be valid: %v", err)
	}
	if err := ValidateSigningKey([]byte("too-short")); err == nil {
		t.Fatal("short key should be rejected")
	}
}
