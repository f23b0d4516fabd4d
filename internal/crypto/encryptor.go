// Package crypto implements the PII encryption envelope, the identity
// fingerprint, and server-side password hashing.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/govlogin/idp-core/internal/errs"
)

// Key derivation parameters.
const (
	keyLen     = 32
	kdfSaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
)

var hkdfInfo = []byte("pii-encryption-key")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Encryptor seals and opens PII envelopes. Keys are derived per call from a
// caller-supplied secret plus a server-held key component that never leaves
// this package. Envelope layout: kdfSalt || nonce || AEAD ciphertext.
type Encryptor struct {
	serverKey []byte
}

// NewEncryptor constructs an Encryptor with the server key component.
func NewEncryptor(serverKey []byte) (*Encryptor, error) {
	if len(serverKey) < kdfSaltLen {
		return nil, errors.New("server key component too short")
	}
	return &Encryptor{serverKey: append([]byte(nil), serverKey...)}, nil
}

// Encrypt derives a key from the user secret (slow, Argon2id) and seals
// plaintext into a fresh envelope.
func (e *Encryptor) Encrypt(plaintext, secret []byte) ([]byte, error) {
	salt, err := RandBytes(kdfSaltLen)
	if err != nil {
		return nil, err
	}
	key, err := e.deriveKey(secret, salt)
	if err != nil {
		return nil, err
	}
	return e.seal(key, salt, plaintext)
}

// Decrypt opens an envelope produced by Encrypt. A malformed envelope, failed
// authentication tag and wrong secret all return errs.ErrDecryption; callers
// must not be able to tell which occurred.
func (e *Encryptor) Decrypt(envelope, secret []byte) ([]byte, error) {
	if len(envelope) < kdfSaltLen+chacha20poly1305.NonceSizeX {
		return nil, errs.ErrDecryption
	}
	key, err := e.deriveKey(secret, envelope[:kdfSaltLen])
	if err != nil {
		return nil, errs.ErrDecryption
	}
	return e.open(key, envelope)
}

// EncryptKeyed seals plaintext under a high-entropy secret (e.g., a random
// session secret). The Argon2id stretch is skipped; the key comes from
// HKDF alone. Same envelope layout as Encrypt.
func (e *Encryptor) EncryptKeyed(plaintext, secret []byte) ([]byte, error) {
	salt, err := RandBytes(kdfSaltLen)
	if err != nil {
		return nil, err
	}
	key, err := e.expandKey(secret, salt)
	if err != nil {
		return nil, err
	}
	return e.seal(key, salt, plaintext)
}

// DecryptKeyed opens an envelope produced by EncryptKeyed.
func (e *Encryptor) DecryptKeyed(envelope, secret []byte) ([]byte, error) {
	if len(envelope) < kdfSaltLen+chacha20poly1305.NonceSizeX {
		return nil, errs.ErrDecryption
	}
	key, err := e.expandKey(secret, envelope[:kdfSaltLen])
	if err != nil {
		return nil, errs.ErrDecryption
	}
	return e.open(key, envelope)
}

// deriveKey stretches the user secret with Argon2id, then binds in the server
// key component via HKDF-SHA256. Deliberately expensive; callers must treat
// it as blocking.
func (e *Encryptor) deriveKey(secret, salt []byte) ([]byte, error) {
	base := argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, keyLen)
	return e.expand(base, salt)
}

// expandKey derives a key from an already high-entropy secret without the
// Argon2id stretch.
func (e *Encryptor) expandKey(secret, salt []byte) ([]byte, error) {
	return e.expand(secret, salt)
}

func (e *Encryptor) expand(ikm, salt []byte) ([]byte, error) {
	mixed := make([]byte, 0, len(salt)+len(e.serverKey))
	mixed = append(mixed, salt...)
	mixed = append(mixed, e.serverKey...)
	r := hkdf.New(sha256.New, ikm, mixed, hkdfInfo)
	key := make([]byte, keyLen)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

func (e *Encryptor) seal(key, salt, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := RandBytes(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, salt)...)
	return out, nil
}

func (e *Encryptor) open(key, envelope []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.ErrDecryption
	}
	salt := envelope[:kdfSaltLen]
	nonce := envelope[kdfSaltLen : kdfSaltLen+chacha20poly1305.NonceSizeX]
	ct := envelope[kdfSaltLen+chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, salt)
	if err != nil {
		return nil, fmt.Errorf("%w", errs.ErrDecryption)
	}
	return pt, nil
}
