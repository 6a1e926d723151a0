package kv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultKDFIterations is the PBKDF2 iteration count used when the
// configuration does not override it.
const DefaultKDFIterations = 100000

const sealVersion = 0x01

var (
	// ErrDecryptionFailed is returned when a stored value cannot be opened
	// with any configured key. It usually means the value was written under
	// a key that has since been rotated out, or the ciphertext was tampered
	// with.
	ErrDecryptionFailed = errors.New("sealed value cannot be opened")

	// ErrSealerKeyMaterial is returned by NewSealer for empty secrets or salts.
	ErrSealerKeyMaterial = errors.New("sealer requires non-empty secret and salt")
)

// Sealer encrypts and decrypts stored values. Keys are derived once at
// construction via PBKDF2-HMAC-SHA256 from externally supplied secret
// material; the Sealer itself never touches files or environment.
//
// A previous secret may be supplied to support two-phase rotation: Seal
// always uses the current key, Open falls back to the previous key when the
// current one rejects the value.
type Sealer struct {
	current  cipher.AEAD
	previous cipher.AEAD
}

// NewSealer derives the AES-256-GCM keys for value encryption. previous may
// be nil when no rotation is in progress. iterations <= 0 selects
// [DefaultKDFIterations].
func NewSealer(secret, previous, salt []byte, iterations int) (*Sealer, error) {
	if len(secret) == 0 || len(salt) == 0 {
		return nil, ErrSealerKeyMaterial
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}

	current, err := deriveAEAD(secret, salt, iterations)
	if err != nil {
		return nil, err
	}

	s := &Sealer{current: current}
	if len(previous) > 0 {
		prev, err := deriveAEAD(previous, salt, iterations)
		if err != nil {
			return nil, err
		}
		s.previous = prev
	}

	return s, nil
}

func deriveAEAD(secret, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key(secret, salt, iterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal encrypts value under the current key. The output layout is one
// version byte, the GCM nonce, then the ciphertext with its tag.
func (s *Sealer) Seal(value []byte) ([]byte, error) {
	nonce := make([]byte, s.current.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("sealing nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(value)+s.current.Overhead())
	out = append(out, sealVersion)
	out = append(out, nonce...)
	return s.current.Seal(out, nonce, value, nil), nil
}

// Open decrypts a sealed value, trying the current key first and the
// previous key when one is configured.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	nonceSize := s.current.NonceSize()
	if len(sealed) < 1+nonceSize+s.current.Overhead() {
		return nil, ErrDecryptionFailed
	}
	if sealed[0] != sealVersion {
		return nil, ErrDecryptionFailed
	}

	nonce := sealed[1 : 1+nonceSize]
	ciphertext := sealed[1+nonceSize:]

	plain, err := s.current.Open(nil, nonce, ciphertext, nil)
	if err == nil {
		return plain, nil
	}
	if s.previous != nil {
		if plain, prevErr := s.previous.Open(nil, nonce, ciphertext, nil); prevErr == nil {
			return plain, nil
		}
	}

	return nil, ErrDecryptionFailed
}
