// Package auth guards the operator surface with signed bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const roleAdmin = "admin"

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("token lacks admin role")
)

// Claims is the token payload for operator access.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HMAC-signed operator tokens.
type Authenticator struct {
	secret []byte
}

// New builds an authenticator over the shared secret.
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// IssueAdminToken mints a short-lived admin token for the subject.
func (a *Authenticator) IssueAdminToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Role: roleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// VerifyAdmin parses the token and checks the admin role.
func (a *Authenticator) VerifyAdmin(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Role != roleAdmin {
		return nil, ErrForbidden
	}
	return claims, nil
}

// FromRequest extracts and verifies the bearer token of an admin request.
func (a *Authenticator) FromRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoToken
	}
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, ErrNoToken
	}
	return a.VerifyAdmin(tokenString)
}
