// Waveframe - Audio Poster Customization and Preview Service
// Copyright 2026 Waveframe Studio
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/waveframe-studio/waveframe

package assets

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signed URL verification errors.
var (
	ErrTokenExpired = errors.New("asset url token expired")
	ErrTokenInvalid = errors.New("asset url token invalid")
)

// Signer issues and verifies time-limited asset access tokens (HS256).
// The token's subject is the asset key, so a URL issued for one key cannot
// be replayed against another.
type Signer struct {
	secret   []byte
	basePath string
}

// NewSigner creates a signer. basePath is the URL path prefix assets are
// served from, e.g. "/api/v1/assets".
func NewSigner(secret string, basePath string) *Signer {
	return &Signer{
		secret:   []byte(secret),
		basePath: strings.TrimSuffix(basePath, "/"),
	}
}

// SignedURL returns a relative URL for key, valid for ttl.
func (s *Signer) SignedURL(key string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign asset token: %w", err)
	}

	escaped := make([]string, 0, 4)
	for _, part := range strings.Split(key, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}

	return s.basePath + "/" + strings.Join(escaped, "/") + "?token=" + token, nil
}

// Verify checks token and returns the asset key it grants access to.
// The requested key must match the token's subject exactly.
func (s *Signer) Verify(tokenString, requestedKey string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return ErrTokenInvalid
	}
	if claims.Subject != requestedKey {
		return ErrTokenInvalid
	}

	return nil
}
