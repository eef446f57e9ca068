// Package seal provides the symmetric sealing used by the token vault:
// AES-GCM encryption under keys derived from a device-bound secret via
// HKDF, plus a keyed integrity tag over the stored ciphertexts.
package seal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var (
	// ErrSealFailed is returned when encryption cannot complete.
	ErrSealFailed = errors.New("seal failed")
	// ErrOpenFailed is returned when a ciphertext does not decrypt
	// under the derived key.
	ErrOpenFailed = errors.New("open failed")
)

var (
	encInfo = []byte("authcore/vault-enc/v1")
	macInfo = []byte("authcore/vault-mac/v1")
)

// Keys holds the derived encryption and integrity keys. The access
// token is never an input to derivation.
type Keys struct {
	enc [keySize]byte
	mac [keySize]byte
}

// DeriveKeys expands the device-bound secret into distinct encryption
// and MAC keys, salted with the device fingerprint ID so a vault copied
// to another environment does not decrypt.
func DeriveKeys(secret []byte, fingerprintID string) (Keys, error) {
	var keys Keys
	if len(secret) == 0 {
		return keys, errors.New("empty device secret")
	}

	salt := []byte(fingerprintID)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, encInfo), keys.enc[:]); err != nil {
		return keys, err
	}
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, macInfo), keys.mac[:]); err != nil {
		return keys, err
	}
	return keys, nil
}

// Seal encrypts plaintext as nonce||ciphertext.
func (k Keys) Seal(plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(k.enc[:])
	if err != nil {
		return nil, ErrSealFailed
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, ErrSealFailed
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce||ciphertext payload produced by Seal.
func (k Keys) Open(sealed []byte) ([]byte, error) {
	aead, err := newAEAD(k.enc[:])
	if err != nil {
		return nil, ErrOpenFailed
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrOpenFailed
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}

// Tag computes the keyed integrity tag over the stored ciphertexts.
func (k Keys) Tag(parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, k.mac[:])
	for _, p := range parts {
		_, _ = mac.Write(p)
	}
	return mac.Sum(nil)
}

// VerifyTag reports whether tag matches the ciphertexts in constant
// time.
func (k Keys) VerifyTag(tag []byte, parts ...[]byte) bool {
	return hmac.Equal(tag, k.Tag(parts...))
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
