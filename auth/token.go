// Package auth binds proxy requests to a browser session: a gorilla session
// cookie carries an opaque session id, and the authenticity token handed to
// the render engine is an HS256 JWT naming that session and one action.
package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"github.com/hazyhaar/cardcrafter/safeurl"
)

// ActionProxyFetch is the only action the fetch proxy accepts tokens for.
const ActionProxyFetch = "proxy_fetch"

// DefaultTokenTTL bounds how long a token issued to a page stays usable.
const DefaultTokenTTL = 12 * time.Hour

// ErrInvalidToken is returned for missing, expired, forged, or mismatched tokens.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenClaims are the claims carried by an authenticity token.
type TokenClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Action    string `json:"act"`
}

// DeriveKey expands a configured passphrase into a 32-byte key dedicated to
// purpose. Distinct purposes yield independent keys from one passphrase.
func DeriveKey(passphrase, purpose string) ([]byte, error) {
	if passphrase == "" {
		return nil, safeurl.ErrSecretTooShort
	}
	r := hkdf.New(sha256.New, []byte(passphrase), []byte("cardcrafter"), []byte(purpose))
	key := make([]byte, safeurl.MinSecretLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("auth: derive key: %w", err)
	}
	return key, nil
}

// IssueToken signs a token for sessionID and action, valid for ttl.
func IssueToken(secret []byte, sessionID, action string, ttl time.Duration) (string, error) {
	if err := safeurl.ValidateSecret(secret); err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	if sessionID == "" {
		return "", fmt.Errorf("auth: empty session id")
	}
	now := time.Now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SessionID: sessionID,
		Action:    action,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyToken checks that tokenStr is a valid, unexpired HS256 token issued
// for sessionID and action. All failures collapse into ErrInvalidToken.
func VerifyToken(secret []byte, tokenStr, sessionID, action string) error {
	if tokenStr == "" || sessionID == "" {
		return ErrInvalidToken
	}
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	if claims.SessionID != sessionID || claims.Action != action {
		return ErrInvalidToken
	}
	return nil
}
