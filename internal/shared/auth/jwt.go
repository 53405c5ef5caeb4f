package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the access-token claims issued by the customer auth service.
// CustomerID falls back to the subject when the dedicated claim is absent.
type Claims struct {
	CustomerID string   `json:"cid,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

type JWTValidator struct {
	secret    []byte
	publicKey *rsa.PublicKey
	now       func() time.Time
}

// NewJWTValidator returns a validator for HS256 tokens signed with secret, or
// RS256 tokens when publicKeyPEM parses. It returns nil when neither key is
// configured, which callers treat as "token proof disabled".
func NewJWTValidator(secret, publicKeyPEM string) (*JWTValidator, error) {
	v := &JWTValidator{
		secret: []byte(strings.TrimSpace(secret)),
		now:    time.Now,
	}
	if pem := strings.TrimSpace(publicKeyPEM); pem != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return nil, fmt.Errorf("parse jwt public key: %w", err)
		}
		v.publicKey = key
	}
	if v.publicKey == nil && len(v.secret) == 0 {
		return nil, nil
	}
	return v, nil
}

func (v *JWTValidator) Validate(token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if v.publicKey != nil {
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v, expected RS256", t.Header["alg"])
			}
			return v.publicKey, nil
		}
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithLeeway(5*time.Second), jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.CustomerID == "" {
		claims.CustomerID = claims.Subject
	}
	if claims.CustomerID == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
