// Package cryptox implements the key derivation and record encryption
// primitives used by the encrypted vault backends.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"

	"golang.org/x/crypto/argon2"

	"otpkeeper/internal/common"
)

// MakeVerifier returns a SHA-256 digest of the master key. The verifier is
// stored alongside the salt so a passphrase can be checked without keeping
// the key itself on disk.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// DeriveMasterKey derives a 32-byte AES key from a passphrase and salt using
// Argon2id (1 pass, 64 MiB, 4 lanes).
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, 32)
}

// Encrypt seals plaintext with AES-GCM under the given key.
//
// The key must be a valid AES key length (16, 24, or 32 bytes). A new random
// 12-byte nonce is generated for each call and returned separately so the
// caller can persist it next to the ciphertext.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	nonce = common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)

	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. The key and nonce must match
// the ones used during encryption; any tampering with the ciphertext makes
// the GCM tag check fail.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
