package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// APIKeyPrefix starts every bearer token so keys are recognizable in
// config files and logs.
const APIKeyPrefix = "ctu_"

const apiKeySecretBytes = 32

// APIKey is a stored bearer credential. Only the sha256 of the token is
// kept; the plaintext is shown once at creation.
type APIKey struct {
	ID        string
	UserID    string
	Name      string
	KeyHash   string
	CreatedAt time.Time
	RevokedAt *time.Time
}

func NewAPIKey(id, userID, name, keyHash string, createdAt time.Time, revokedAt *time.Time) *APIKey {
	return &APIKey{
		ID:        id,
		UserID:    userID,
		Name:      name,
		KeyHash:   keyHash,
		CreatedAt: createdAt,
		RevokedAt: revokedAt,
	}
}

func (a *APIKey) IsRevoked() bool {
	return a.RevokedAt != nil
}

// ValidateAPIKey checks that every stored field is set and the hash looks
// like a sha256 hex digest.
func ValidateAPIKey(a *APIKey) error {
	if a == nil {
		return ErrMissingRequiredField.WithCause(fmt.Errorf("api key is nil"))
	}
	for field, v := range map[string]string{"ID": a.ID, "UserID": a.UserID, "Name": a.Name, "KeyHash": a.KeyHash} {
		if v == "" {
			return ErrMissingRequiredField.WithCause(fmt.Errorf("api key %s", field))
		}
	}
	if len(a.KeyHash) != sha256.Size*2 {
		return NewDomainError(ErrCodeValidation, "api key hash must be a sha256 hex digest")
	}
	return nil
}

// GenerateAPIToken returns a fresh ctu_ token with 32 random bytes.
func GenerateAPIToken() (string, error) {
	secret := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", err
	}
	return APIKeyPrefix + hex.EncodeToString(secret), nil
}

// HashAPIToken is the lookup key stored in place of the token.
func HashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// IsAPITokenFormat reports whether token is ctu_ followed by 64 hex digits.
func IsAPITokenFormat(token string) bool {
	secret, ok := strings.CutPrefix(token, APIKeyPrefix)
	if !ok || len(secret) != apiKeySecretBytes*2 {
		return false
	}
	_, err := hex.DecodeString(secret)
	return err == nil
}
