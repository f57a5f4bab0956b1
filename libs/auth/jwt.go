package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identify the staff member or booking channel acting on a clinic.
type Claims struct {
	ClinicID string `json:"clinic_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewClaims builds claims for subject valid for ttl from now.
func NewClaims(subject, clinicID, role string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		ClinicID: clinicID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func SignRS256(claims Claims, key *rsa.PrivateKey, keyID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if keyID != "" {
		token.Header["kid"] = keyID
	}
	return token.SignedString(key)
}

func ParseAndVerifyHS256(token, secret string) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.SigningMethodHS256.Alg())
}

// KeyResolver returns the RSA public key for a token key id.
type KeyResolver interface {
	Get(keyID string) (*rsa.PublicKey, error)
}

func VerifyRS256(token string, keys KeyResolver) (*Claims, error) {
	return parse(token, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return keys.Get(kid)
	}, jwt.SigningMethodRS256.Alg())
}

// Verifier checks bearer tokens, preferring RS256 via JWKS and falling back to
// the shared HS256 secret.
type Verifier struct {
	Secret string
	Keys   KeyResolver
}

func (v Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrInvalidToken
	}
	if v.Keys != nil {
		if claims, err := VerifyRS256(token, v.Keys); err == nil {
			return claims, nil
		}
	}
	if v.Secret != "" {
		return ParseAndVerifyHS256(token, v.Secret)
	}
	return nil, ErrInvalidToken
}

func parse(token string, keyFunc jwt.Keyfunc, alg string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc,
		jwt.WithValidMethods([]string{alg}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ClinicID == "" {
		return nil, fmt.Errorf("%w: missing clinic_id", ErrInvalidToken)
	}
	return claims, nil
}
