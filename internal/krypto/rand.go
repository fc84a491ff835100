package krypto

import (
	"crypto/rand"
	"fmt"
)

// genRandomBytes returns n bytes from the operating systems CSPRNG.
// If the random source fails the error is returned, callers should
// abort whatever they were doing. There is no fallback source.
func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}

	return b, nil
}
