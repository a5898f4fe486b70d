// Copyright (c) 2026 MLForge. All rights reserved.
// Author: platform@mlforge.dev

package sec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateSecureToken returns a URL-safe random string built from byteLength
// bytes of cryptographic entropy.
//
// # Entropy
//
// A byteLength of 32 yields 256 bits of entropy, which is the minimum for
// unguessable bearer artifacts (verification and reset tokens, JWT IDs).
func GenerateSecureToken(byteLength int) (string, error) {
	buffer := make([]byte, byteLength)

	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("sec: failed to read random bytes: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buffer), nil
}
