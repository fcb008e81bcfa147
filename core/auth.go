package core

import (
	"errors"
	"strings"
)

// Principal is an identity the credential store vouched for.
type Principal struct {
	UserID string
	Email  string
}

var (
	// ErrInvalidEmail is returned when an email is missing or malformed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrMissingProof is returned when a recorder call carries no bearer credential.
	ErrMissingProof = errors.New("missing authentication proof")
	// ErrProofMismatch is returned when the bearer credential belongs to another email.
	ErrProofMismatch = errors.New("authentication proof does not match email")
	// ErrInvalidToken is returned when an access token cannot be verified.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrCredentialStore wraps failures talking to the identity provider.
	ErrCredentialStore = errors.New("credential store failure")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// NormalizeEmail trims and lower-cases an address the way the identity provider stores it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// bearerToken extracts the credential from an "Authorization: Bearer <token>" header.
// The remainder is returned verbatim; surrounding whitespace is part of the credential.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := header[len(prefix):]
	if strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}
