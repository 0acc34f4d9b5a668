package models

import "time"

// Provider identifies an external AI provider. The set is closed: adding a
// provider means adding a constant here, not a loose field elsewhere.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return true
	}
	return false
}

// StoredCredential holds the encrypted third-party secrets owned by one
// identity: at most one linked-account token (static-key serialization)
// and any number of provider API keys (per-identity serialization).
// A credential is replaced wholesale on reconnect, never patched in place.
type StoredCredential struct {
	IdentityID   string
	LinkedToken  string // serialized iv:ciphertext:authTag, empty when unlinked
	ProviderKeys map[Provider]string // serialized iv:ciphertext:authTag:salt
	UpdatedAt    time.Time
}
