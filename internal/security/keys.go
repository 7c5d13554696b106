package security

import "fmt"

// MinSigningKeyLen is the minimum acceptable length, in bytes, of the HMAC signing key used by
// TokenProvider. 32 bytes matches the block size HS256 operates on internally; shorter keys are
// rejected at load time rather than silently accepted and weakly hashed.
const MinSigningKeyLen = 32

// ValidateSigningKey checks that key is long enough to use as an HS256 MAC key. Config.Load calls
// this before constructing a TokenProvider so a misconfigured deployment fails at startup instead
// of minting forgeable credentials.
func ValidateSigningKey(key []byte) error {
	if len(key) < MinSigningKeyLen {
		return fmt.Errorf("signing key must be at least %d bytes, got %d", MinSigningKeyLen, len(key))
	}
	return nil
}
