package zoom

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateState returns a random URL-safe value for the OAuth state
// parameter.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
