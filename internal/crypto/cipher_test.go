package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := randomKey(t)
	plaintext := []byte("sk-user-provider-key-000111222333")

	secret, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(secret.Ciphertext, plaintext) {
		t.Error("ciphertext should differ from plaintext")
	}
	if len(secret.AuthTag) != tagSize {
		t.Errorf("expected %d-byte tag, got %d", tagSize, len(secret.AuthTag))
	}

	decrypted, err := Decrypt(secret, key)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted %q != original %q", decrypted, plaintext)
	}
}

func TestEncryptFreshIV(t *testing.T) {
	key := randomKey(t)
	a, _ := Encrypt([]byte("same plaintext"), key)
	b, _ := Encrypt([]byte("same plaintext"), key)
	if bytes.Equal(a.IV, b.IV) {
		t.Error("two encryptions should never share an IV")
	}
	if bytes.Equal(a.Ciphertext, b.Ciphertext) {
		t.Error("fresh IVs should produce different ciphertexts")
	}
}

func TestDecryptWrongKey(t *testing.T) {
	key := randomKey(t)
	wrongKey := randomKey(t)

	secret, _ := Encrypt([]byte("secret data"), key)
	_, err := Decrypt(secret, wrongKey)
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("expected ErrIntegrity with wrong key, got %v", err)
	}
}

func TestDecryptTamperedCiphertext(t *testing.T) {
	key := randomKey(t)
	secret, _ := Encrypt([]byte("tamper target payload"), key)

	// Flip a single bit in each byte position of ciphertext and tag.
	for i := range secret.Ciphertext {
		mutated := *secret
		mutated.Ciphertext = bytes.Clone(secret.Ciphertext)
		mutated.Ciphertext[i] ^= 0x01
		if _, err := Decrypt(&mutated, key); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("ciphertext bit flip at %d: expected ErrIntegrity, got %v", i, err)
		}
	}
	for i := range secret.AuthTag {
		mutated := *secret
		mutated.AuthTag = bytes.Clone(secret.AuthTag)
		mutated.AuthTag[i] ^= 0x80
		if _, err := Decrypt(&mutated, key); !errors.Is(err, ErrIntegrity) {
			t.Fatalf("tag bit flip at %d: expected ErrIntegrity, got %v", i, err)
		}
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	seed := []byte("identity-seed")
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey(seed, salt)
	k2 := DeriveKey(seed, salt)
	if !bytes.Equal(k1, k2) {
		t.Error("derivation should be deterministic for same seed+salt")
	}
	if len(k1) != KeySize {
		t.Errorf("expected %d-byte key, got %d", KeySize, len(k1))
	}

	k3 := DeriveKey(seed, []byte("fedcba9876543210"))
	if bytes.Equal(k1, k3) {
		t.Error("different salts should yield different keys")
	}
	k4 := DeriveKey([]byte("other-seed"), salt)
	if bytes.Equal(k1, k4) {
		t.Error("different seeds should yield different keys")
	}
}

func TestSerializeParseStatic(t *testing.T) {
	key := randomKey(t)
	secret, _ := Encrypt([]byte("linked account token"), key)

	serialized := secret.Serialize()
	if got := strings.Count(serialized, ":"); got != 2 {
		t.Fatalf("static form should have 3 fields, got %d separators", got)
	}

	parsed, err := ParseSecret(serialized, false)
	if err != nil {
		t.Fatalf("ParseSecret failed: %v", err)
	}
	plaintext, err := Decrypt(parsed, key)
	if err != nil {
		t.Fatalf("Decrypt after parse failed: %v", err)
	}
	if string(plaintext) != "linked account token" {
		t.Errorf("round trip mismatch: %q", plaintext)
	}
}

func TestParseSecretFieldCount(t *testing.T) {
	cases := []struct {
		serialized string
		withSalt   bool
	}{
		{"aabb:ccdd", false},
		{"aabb:ccdd:eeff:0011", false}, // 4 fields in static mode
		{"aabb:ccdd:eeff", true},       // 3 fields in per-identity mode
		{"aabb:ccdd:eeff:0011:2233", true},
		{"", false},
	}
	for _, tc := range cases {
		if _, err := ParseSecret(tc.serialized, tc.withSalt); !errors.Is(err, ErrFormat) {
			t.Errorf("ParseSecret(%q, salt=%v): expected ErrFormat, got %v", tc.serialized, tc.withSalt, err)
		}
	}

	if _, err := ParseSecret("xx:yy:zz", false); !errors.Is(err, ErrFormat) {
		t.Errorf("non-hex fields should be ErrFormat, got %v", err)
	}
}

func TestParseSecretFieldLengths(t *testing.T) {
	seed := []byte("static-key-material|identity-7")
	serialized, err := SealWithSeed([]byte("sk-user-key"), seed)
	if err != nil {
		t.Fatalf("SealWithSeed failed: %v", err)
	}
	fields := strings.Split(serialized, ":")

	mangle := func(i int, v string) string {
		out := make([]string, len(fields))
		copy(out, fields)
		out[i] = v
		return strings.Join(out, ":")
	}

	// Valid hex, wrong length: must come back as ErrFormat from the
	// parse, never reach GCM.
	cases := []struct {
		name       string
		serialized string
	}{
		{"truncated iv", mangle(0, fields[0][:len(fields[0])-4])},
		{"oversized iv", mangle(0, fields[0] + "abcd")},
		{"empty iv", mangle(0, "")},
		{"truncated tag", mangle(2, fields[2][:len(fields[2])-4])},
		{"truncated salt", mangle(3, fields[3][:len(fields[3])-4])},
	}
	for _, tc := range cases {
		plaintext, err := OpenWithSeed(tc.serialized, seed)
		if !errors.Is(err, ErrFormat) {
			t.Errorf("%s: expected ErrFormat, got %v", tc.name, err)
		}
		if plaintext != nil {
			t.Errorf("%s: expected no plaintext output", tc.name)
		}
	}

	// Static mode enforces the same lengths.
	cipher, err := NewStaticCipher(strings.Repeat("ab", 32))
	if err != nil {
		t.Fatalf("NewStaticCipher failed: %v", err)
	}
	sealed, err := cipher.Seal([]byte("linked token"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	staticFields := strings.Split(sealed, ":")
	staticFields[0] = staticFields[0][:len(staticFields[0])-4]
	if _, err := cipher.Open(strings.Join(staticFields, ":")); !errors.Is(err, ErrFormat) {
		t.Errorf("static mode truncated iv: expected ErrFormat, got %v", err)
	}
}

func TestSeedSealRoundTrip(t *testing.T) {
	seed := []byte("static-key-material|identity-42")
	plaintext := []byte("sk-gemini-user-key")

	serialized, err := SealWithSeed(plaintext, seed)
	if err != nil {
		t.Fatalf("SealWithSeed failed: %v", err)
	}
	if got := strings.Count(serialized, ":"); got != 3 {
		t.Fatalf("per-identity form should have 4 fields, got %d separators", got)
	}

	decrypted, err := OpenWithSeed(serialized, seed)
	if err != nil {
		t.Fatalf("OpenWithSeed failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("round trip mismatch: %q", decrypted)
	}

	// Fresh salt per call: two seals of the same plaintext differ entirely.
	serialized2, _ := SealWithSeed(plaintext, seed)
	if serialized == serialized2 {
		t.Error("two seals should not produce identical serializations")
	}

	if _, err := OpenWithSeed(serialized, []byte("wrong seed")); !errors.Is(err, ErrIntegrity) {
		t.Errorf("wrong seed should fail with ErrIntegrity, got %v", err)
	}
}

func TestNewStaticCipherConfig(t *testing.T) {
	if _, err := NewStaticCipher(""); !errors.Is(err, ErrConfig) {
		t.Errorf("empty key: expected ErrConfig, got %v", err)
	}
	if _, err := NewStaticCipher("not-hex"); !errors.Is(err, ErrConfig) {
		t.Errorf("non-hex key: expected ErrConfig, got %v", err)
	}
	if _, err := NewStaticCipher("aabbcc"); !errors.Is(err, ErrConfig) {
		t.Errorf("short key: expected ErrConfig, got %v", err)
	}

	c, err := NewStaticCipher(strings.Repeat("ab", KeySize))
	if err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
	serialized, err := c.Seal([]byte("github oauth token"))
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	plaintext, err := c.Open(serialized)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(plaintext) != "github oauth token" {
		t.Errorf("static round trip mismatch: %q", plaintext)
	}
}

func TestIdentitySeedDistinct(t *testing.T) {
	c, _ := NewStaticCipher(strings.Repeat("cd", KeySize))
	if bytes.Equal(c.IdentitySeed("user-a"), c.IdentitySeed("user-b")) {
		t.Error("different identities should have different seeds")
	}

	// A secret sealed for one identity must not open for another.
	serialized, _ := SealWithSeed([]byte("key"), c.IdentitySeed("user-a"))
	if _, err := OpenWithSeed(serialized, c.IdentitySeed("user-b")); !errors.Is(err, ErrIntegrity) {
		t.Errorf("cross-identity open should fail with ErrIntegrity, got %v", err)
	}
}
