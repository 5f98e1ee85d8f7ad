package authkit

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const federatedSecretByteLength = 32

func randomOpaque(byteLength int) (string, error) {
	randomBytes := make([]byte, byteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("auth.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// federatedPasswordSeed is hashed into the password of accounts created by a
// provider sign-in, so that the password flow can never match them.
func federatedPasswordSeed(provider string) (string, error) {
	opaque, err := randomOpaque(federatedSecretByteLength)
	if err != nil {
		return "", err
	}
	return provider + "_" + opaque, nil
}
