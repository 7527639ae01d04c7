package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ScopeProfile = "profile"
	ScopeAdmin   = "admin"

	issuer = "scholarbridge"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongScope   = errors.New("token scope mismatch")
)

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// GenerateToken signs an HS256 token for subject. A ttl of zero issues a
// token without expiry.
func GenerateToken(secret string, ttl time.Duration, scope, subject string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token failed: %w", err)
	}
	return signed, nil
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateLinkToken binds a profile download link to one record id.
func GenerateLinkToken(secret string, ttl time.Duration, recordID string) (string, error) {
	return GenerateToken(secret, ttl, ScopeProfile, recordID)
}

// VerifyLinkToken checks that token was issued for recordID.
func VerifyLinkToken(secret, tokenString, recordID string) error {
	claims, err := ParseToken(secret, tokenString)
	if err != nil {
		return err
	}
	if claims.Scope != ScopeProfile || claims.Subject != recordID {
		return ErrWrongScope
	}
	return nil
}

func GenerateAdminToken(secret string, ttl time.Duration, operator string) (string, error) {
	return GenerateToken(secret, ttl, ScopeAdmin, operator)
}

func ParseAdminToken(secret, tokenString string) (*Claims, error) {
	claims, err := ParseToken(secret, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeAdmin {
		return nil, ErrWrongScope
	}
	return claims, nil
}
