// Package cipher implements the symmetric block cipher used by the CHK
// (convergent encryption) block indexer: blocks are sealed under K1,
// the hash of their own plaintext, with no key management beyond that
// convergent scheme. golang.org/x/crypto/nacl/secretbox provides
// authenticated symmetric encryption with a fixed 32-byte key and
// needs no key management of its own.
package cipher

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// KeySize is the required symmetric key length.
const KeySize = 32

// NonceSize is the nonce length secretbox requires.
const NonceSize = 24

// Seal encrypts plaintext under key (which must be KeySize bytes,
// typically K1 = H(plaintext) for convergent encryption) and returns
// the ciphertext.
//
// The nonce is derived deterministically from key rather than drawn at
// random: convergent encryption's whole point is that identical
// plaintexts produce identical ciphertexts, and since key is itself
// derived from the plaintext it encrypts, a key is never reused across
// distinct plaintexts — so a key-derived nonce carries no nonce-reuse
// risk while keeping Seal deterministic.
func Seal(key, plaintext []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	var k [KeySize]byte
	copy(k[:], key)
	nonce := deriveNonce(key)
	return secretbox.Seal(nil, plaintext, &nonce, &k), nil
}

// Open reverses Seal.
func Open(key, sealed []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	var k [KeySize]byte
	copy(k[:], key)
	nonce := deriveNonce(key)

	out, ok := secretbox.Open(nil, sealed, &nonce, &k)
	if !ok {
		return nil, fmt.Errorf("cipher: authentication failed")
	}
	return out, nil
}

func deriveNonce(key []byte) [NonceSize]byte {
	sum := sha256.Sum256(key)
	var nonce [NonceSize]byte
	copy(nonce[:], sum[:NonceSize])
	return nonce
}
