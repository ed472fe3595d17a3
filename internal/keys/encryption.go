package keys

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const saltSize = 16

// CipherParams holds the Argon2id cost parameters used to derive the sealing key.
type CipherParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultCipherParams returns production Argon2id parameters.
func DefaultCipherParams() CipherParams {
	return CipherParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

// TestCipherParams returns minimal-cost parameters so tests stay fast.
func TestCipherParams() CipherParams {
	return CipherParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

// Cipher seals private keys and mnemonics before they reach durable storage,
// using Argon2id key derivation and XChaCha20-Poly1305.
type Cipher struct {
	secret []byte
	params CipherParams
}

// NewCipher builds a cipher from the service master secret.
func NewCipher(secret []byte, params CipherParams) (*Cipher, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("cipher secret must not be empty")
	}
	return &Cipher{secret: secret, params: params}, nil
}

// Sealed output layout: salt(16) | nonce(24) | ciphertext.
func (c *Cipher) Seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := c.deriveKey(salt)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, saltSize+len(nonce)+len(plain)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, nil), nil
}

// Open reverses Seal.
func (c *Cipher) Open(sealed []byte) ([]byte, error) {
	minSize := saltSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return nil, fmt.Errorf("sealed data too short: %d bytes", len(sealed))
	}

	salt := sealed[:saltSize]
	nonce := sealed[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[saltSize+chacha20poly1305.NonceSizeX:]

	key := c.deriveKey(salt)
	defer wipe(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed data: %w", err)
	}
	return plain, nil
}

func (c *Cipher) deriveKey(salt []byte) []byte {
	return argon2.IDKey(c.secret, salt, c.params.Iterations, c.params.Memory, c.params.Parallelism, chacha20poly1305.KeySize)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
