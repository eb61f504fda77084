// Package auth generates and verifies API keys for the portsweep server.
// Only a bcrypt hash of the key is ever stored in configuration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of an API key.
	APIKeyLength = 32
	// APIKeyPrefix is the prefix of every API key.
	APIKeyPrefix = "psk"

	// BcryptCost is the bcrypt cost used for new hashes.
	BcryptCost = 12
	// BcryptMaxInputLength is the longest input bcrypt accepts.
	BcryptMaxInputLength = 72

	maxKeyNameLength = 255
)

// GeneratedAPIKey is a fresh API key. Key is shown once; Hash goes into
// the api.api_key_hash setting.
type GeneratedAPIKey struct {
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Hash      string    `json:"hash"`
	KeyPrefix string    `json:"key_prefix"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateAPIKey creates and hashes a new API key.
func GenerateAPIKey(name string) (*GeneratedAPIKey, error) {
	if err := validateKeyName(name); err != nil {
		return nil, fmt.Errorf("invalid key name: %w", err)
	}

	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters
	randomPart := strings.ToLower(base32.StdEncoding.EncodeToString(randomBytes))[:APIKeyLength]
	fullKey := APIKeyPrefix + "_" + randomPart

	hash, err := HashAPIKey(fullKey)
	if err != nil {
		return nil, err
	}

	return &GeneratedAPIKey{
		Name:      name,
		Key:       fullKey,
		Hash:      hash,
		KeyPrefix: CreateDisplayPrefix(fullKey),
		CreatedAt: time.Now().UTC(),
	}, nil
}

func prepare(apiKey string) []byte {
	keyBytes := []byte(apiKey)
	if len(keyBytes) > BcryptMaxInputLength {
		sum := sha256.Sum256(keyBytes)
		keyBytes = sum[:]
	}
	return keyBytes
}

// HashAPIKey returns the bcrypt hash of an API key. Keys longer than the
// bcrypt input limit are pre-hashed with SHA-256.
func HashAPIKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword(prepare(apiKey), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// ValidateAPIKey reports whether apiKey matches storedHash.
func ValidateAPIKey(apiKey, storedHash string) bool {
	if apiKey == "" || storedHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(storedHash), prepare(apiKey)) == nil
}

// IsValidAPIKeyFormat checks prefix, length and alphabet of an API key.
func IsValidAPIKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix+"_") {
		return false
	}
	if len(apiKey) < 15 || len(apiKey) > 50 {
		return false
	}
	for _, char := range apiKey {
		if (char < 'a' || char > 'z') &&
			(char < 'A' || char > 'Z') &&
			(char < '0' || char > '9') &&
			char != '_' {
			return false
		}
	}
	return true
}

// CreateDisplayPrefix returns a prefix of the key that is safe to print.
func CreateDisplayPrefix(apiKey string) string {
	if !IsValidAPIKeyFormat(apiKey) {
		return "invalid_key"
	}

	parts := strings.SplitN(apiKey, "_", 2)
	if len(parts[1]) >= 8 {
		return fmt.Sprintf("%s_%s...", parts[0], parts[1][:8])
	}
	return fmt.Sprintf("%s_%s...", parts[0], parts[1])
}

func validateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	if len(name) > maxKeyNameLength {
		return fmt.Errorf("key name must be at most %d characters", maxKeyNameLength)
	}

	for _, char := range name {
		// ASCII and C1 controls, bidi overrides and isolates
		if char < 32 || char == 127 ||
			(char >= 0x0080 && char <= 0x009F) ||
			(char >= 0x202A && char <= 0x202E) ||
			(char >= 0x2066 && char <= 0x2069) {
			return fmt.Errorf("key name contains invalid characters")
		}
	}
	return nil
}
