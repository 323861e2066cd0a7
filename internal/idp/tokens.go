// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package idp

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/authview/authview/internal/auth"
)

// Audience is the aud claim on every token this provider issues or accepts.
const Audience = "authview"

const sessionIssuer = "authview-idp"

// sessionClaims back the signed-in session. AuthTime is when the user last
// presented a credential, which is what the recent-login window checks.
type sessionClaims struct {
	AuthTime int64 `json:"auth_time"`
	jwt.RegisteredClaims
}

// federatedClaims are carried by apple.com and google.com ID tokens.
type federatedClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type signer struct {
	key []byte
	now func() time.Time
}

func (s signer) keyFunc(*jwt.Token) (any, error) {
	return s.key, nil
}

func (s signer) parserOptions(issuer string) []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	}
}

func (s signer) issueSession(uid string, authTime time.Time, ttl time.Duration) (string, error) {
	now := s.now()
	claims := sessionClaims{
		AuthTime: authTime.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   uid,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", oops.Code("IDP_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

func (s signer) parseSession(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc, s.parserOptions(sessionIssuer)...); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s signer) issueFederated(provider auth.ProviderType, subject, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := federatedClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    string(provider),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", oops.Code("IDP_TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

func (s signer) parseFederated(provider auth.ProviderType, token string) (*federatedClaims, error) {
	claims := &federatedClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, s.keyFunc, s.parserOptions(string(provider))...); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, oops.Code("IDP_TOKEN_INVALID").Errorf("token has no subject")
	}
	return claims, nil
}
