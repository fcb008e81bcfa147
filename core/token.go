package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 access tokens locally with the project's JWT secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (Principal, error) {
	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" || claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing sub/email claim", ErrInvalidToken)
	}
	return Principal{UserID: claims.Subject, Email: claims.Email}, nil
}

// StoreVerifier asks the credential store who a token belongs to.
type StoreVerifier struct {
	store CredentialStore
}

func NewStoreVerifier(store CredentialStore) *StoreVerifier {
	return &StoreVerifier{store: store}
}

func (v *StoreVerifier) Verify(ctx context.Context, token string) (Principal, error) {
	p, err := v.store.GetUser(ctx, token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			return Principal{}, err
		}
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	return p, nil
}

// NewTokenVerifier verifies locally when a JWT secret is configured, otherwise remotely.
func NewTokenVerifier(cfg Config, store CredentialStore) TokenVerifier {
	if cfg.SupabaseJWTSecret != "" {
		return NewJWTVerifier(cfg.SupabaseJWTSecret)
	}
	return NewStoreVerifier(store)
}
