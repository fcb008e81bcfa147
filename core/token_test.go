package core

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims accessClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validClaims() accessClaims {
	return accessClaims{
		Email: "seller@x.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestJWTVerifierAccepts(t *testing.T) {
	v := NewJWTVerifier(testJWTSecret)
	p, err := v.Verify(context.Background(), signToken(t, jwt.SigningMethodHS256, testJWTSecret, validClaims()))
	require.NoError(t, err)
	require.Equal(t, Principal{UserID: "u-1", Email: "seller@x.com"}, p)
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier(testJWTSecret)

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noEmail := validClaims()
	noEmail.Email = ""

	noExp := validClaims()
	noExp.ExpiresAt = nil

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, "another-secret-another-secret-another", validClaims()),
		"expired":      signToken(t, jwt.SigningMethodHS256, testJWTSecret, expired),
		"no email":     signToken(t, jwt.SigningMethodHS256, testJWTSecret, noEmail),
		"no exp":       signToken(t, jwt.SigningMethodHS256, testJWTSecret, noExp),
		"wrong alg":    signToken(t, jwt.SigningMethodHS512, testJWTSecret, validClaims()),
		"garbage":      "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewTokenVerifierChoosesLocal(t *testing.T) {
	require.IsType(t, &JWTVerifier{}, NewTokenVerifier(Config{SupabaseJWTSecret: "x"}, nil))
	require.IsType(t, &StoreVerifier{}, NewTokenVerifier(Config{}, &fakeStore{}))
}
