package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeyLength is the number of random bytes in a generated api key.
const KeyLength = 32

// Credentials is the parsed form of a User-Token header. Set once at parse
// time, then frozen.
type Credentials struct {
	userID string
	apiKey string
}

// UserID returns the uuid part of the token.
func (c Credentials) UserID() string { return c.userID }

// APIKey returns the secret part of the token.
func (c Credentials) APIKey() string { return c.apiKey }

// String renders the credentials back into header form.
func (c Credentials) String() string {
	return c.userID + ":" + c.apiKey
}

// ParseUserToken splits a User-Token header value into credentials.
// The expected form is "<uuidv4>:<api_key>" with exactly one colon; an empty
// value is reported as ErrEmptyUserToken so callers can fall back to the
// anonymous context.
func ParseUserToken(header string) (Credentials, error) {
	if header == "" {
		return Credentials{}, ErrEmptyUserToken
	}
	parts := strings.Split(header, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Credentials{}, ErrImproperUserToken
	}
	id, err := uuid.Parse(parts[0])
	if err != nil || id.Version() != 4 {
		return Credentials{}, ErrImproperUserToken
	}
	return Credentials{userID: id.String(), apiKey: parts[1]}, nil
}

// VerifyKey compares a stored api key with a supplied one in constant time.
func VerifyKey(stored, supplied string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

// GenerateAPIKey creates a URL-safe random api key.
func GenerateAPIKey() (string, error) {
	raw := make([]byte, KeyLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// GenerateUserID creates a new user id.
func GenerateUserID() string {
	return uuid.NewString()
}
