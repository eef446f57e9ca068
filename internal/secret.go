// Package internal holds helpers shared by the root package that must
// not become part of the public API.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
)

const deviceSecretSize = 32

// NewDeviceSecret returns a fresh random device-bound secret.
func NewDeviceSecret() ([]byte, error) {
	secret := make([]byte, deviceSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// DeriveDeviceSecret derives a stable device-bound secret from the
// fingerprint ID. Used when the embedding application supplies no
// secret of its own: the vault then binds to the environment snapshot
// rather than to operator-provisioned key material.
func DeriveDeviceSecret(fingerprintID string) []byte {
	sum := sha256.Sum256([]byte("authcore/device-secret/v1:" + fingerprintID))
	return sum[:]
}
