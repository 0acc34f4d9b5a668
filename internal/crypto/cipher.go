package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// ivSize is the GCM nonce length in bytes.
	ivSize = 12
	// saltSize is the per-identity salt length in bytes.
	saltSize = 16
	// tagSize is the GCM authentication tag length in bytes.
	tagSize = 16
	// deriveIterations is the PBKDF2 iteration count for seed stretching.
	deriveIterations = 100_000
)

// ErrIntegrity is returned when an authentication tag does not verify:
// tampered ciphertext, a wrong key, or corrupted data. Decryption never
// returns plaintext in this case.
var ErrIntegrity = errors.New("integrity check failed")

// ErrFormat is returned when a stored secret does not parse into the
// expected serialized form.
var ErrFormat = errors.New("malformed encrypted secret")

// ErrConfig is returned for fatal deployment misconfiguration, detected
// at startup.
var ErrConfig = errors.New("invalid encryption configuration")

// EncryptedSecret is an authenticated-encrypted value at rest. Salt is nil
// in static-key mode and present in per-identity mode.
type EncryptedSecret struct {
	IV         []byte
	Ciphertext []byte
	AuthTag    []byte
	Salt       []byte
}

// Serialize renders the secret as colon-delimited hex fields:
// iv:ciphertext:authTag in static-key mode, plus :salt in per-identity mode.
func (s *EncryptedSecret) Serialize() string {
	fields := []string{
		hex.EncodeToString(s.IV),
		hex.EncodeToString(s.Ciphertext),
		hex.EncodeToString(s.AuthTag),
	}
	if s.Salt != nil {
		fields = append(fields, hex.EncodeToString(s.Salt))
	}
	return strings.Join(fields, ":")
}

// ParseSecret parses a serialized secret. withSalt selects the 4-field
// per-identity form; otherwise exactly 3 fields are required.
func ParseSecret(serialized string, withSalt bool) (*EncryptedSecret, error) {
	fields := strings.Split(serialized, ":")
	want := 3
	if withSalt {
		want = 4
	}
	if len(fields) != want {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrFormat, want, len(fields))
	}
	decoded := make([][]byte, len(fields))
	for i, f := range fields {
		b, err := hex.DecodeString(f)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d is not hex", ErrFormat, i)
		}
		decoded[i] = b
	}
	s := &EncryptedSecret{IV: decoded[0], Ciphertext: decoded[1], AuthTag: decoded[2]}
	if withSalt {
		s.Salt = decoded[3]
	}
	// Length checks keep a truncated or padded field from reaching GCM,
	// which panics on a wrong-size nonce instead of returning an error.
	if len(s.IV) != ivSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrFormat, ivSize, len(s.IV))
	}
	if len(s.AuthTag) != tagSize {
		return nil, fmt.Errorf("%w: auth tag must be %d bytes, got %d", ErrFormat, tagSize, len(s.AuthTag))
	}
	if withSalt && len(s.Salt) != saltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes, got %d", ErrFormat, saltSize, len(s.Salt))
	}
	return s, nil
}

// DeriveKey stretches a seed into a 32-byte AES key using
// PBKDF2-SHA512 with a deliberately high iteration count, so a leaked
// seed is not immediately usable as a key.
func DeriveKey(seed, salt []byte) []byte {
	return pbkdf2.Key(seed, salt, deriveIterations, KeySize, sha512.New)
}

// Encrypt performs AES-256-GCM authenticated encryption with a fresh
// random IV. The tag is captured separately from the ciphertext.
func Encrypt(plaintext, key []byte) (*EncryptedSecret, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	return &EncryptedSecret{
		IV:         iv,
		Ciphertext: sealed[:len(sealed)-tagSize],
		AuthTag:    sealed[len(sealed)-tagSize:],
	}, nil
}

// Decrypt reverses Encrypt. It fails with ErrIntegrity if the tag does not
// verify and never returns unauthenticated output.
func Decrypt(secret *EncryptedSecret, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(secret.Ciphertext)+len(secret.AuthTag))
	sealed = append(sealed, secret.Ciphertext...)
	sealed = append(sealed, secret.AuthTag...)
	plaintext, err := gcm.Open(nil, secret.IV, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// StaticCipher encrypts with a single process-wide key from deployment
// configuration. Used for linked-account tokens.
type StaticCipher struct {
	key []byte
}

// NewStaticCipher validates and decodes the configured hex key. The key
// must be present and exactly 32 bytes once decoded.
func NewStaticCipher(hexKey string) (*StaticCipher, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("%w: encryption key is not set", ErrConfig)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: encryption key is not valid hex", ErrConfig)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: encryption key must be %d bytes, got %d", ErrConfig, KeySize, len(key))
	}
	return &StaticCipher{key: key}, nil
}

// Seal encrypts plaintext and returns the 3-field serialized form.
func (c *StaticCipher) Seal(plaintext []byte) (string, error) {
	secret, err := Encrypt(plaintext, c.key)
	if err != nil {
		return "", err
	}
	return secret.Serialize(), nil
}

// Open parses a 3-field serialized secret and decrypts it.
func (c *StaticCipher) Open(serialized string) ([]byte, error) {
	secret, err := ParseSecret(serialized, false)
	if err != nil {
		return nil, err
	}
	return Decrypt(secret, c.key)
}

// IdentitySeed combines the static key with an identity id into the
// derivation seed for that identity's secrets, so neither a database dump
// nor the configured key alone decrypts a user key.
func (c *StaticCipher) IdentitySeed(identityID string) []byte {
	seed := make([]byte, 0, len(c.key)+len(identityID))
	seed = append(seed, c.key...)
	seed = append(seed, identityID...)
	return seed
}

// SealWithSeed encrypts plaintext under a key derived from seed with a
// freshly generated salt and returns the 4-field serialized form.
func SealWithSeed(plaintext, seed []byte) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := DeriveKey(seed, salt)
	defer zeroBytes(key)

	secret, err := Encrypt(plaintext, key)
	if err != nil {
		return "", err
	}
	secret.Salt = salt
	return secret.Serialize(), nil
}

// OpenWithSeed parses a 4-field serialized secret, re-derives the key from
// seed and the stored salt, and decrypts.
func OpenWithSeed(serialized string, seed []byte) ([]byte, error) {
	secret, err := ParseSecret(serialized, true)
	if err != nil {
		return nil, err
	}
	key := DeriveKey(seed, secret.Salt)
	defer zeroBytes(key)
	return Decrypt(secret, key)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
