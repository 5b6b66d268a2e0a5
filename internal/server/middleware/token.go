package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer is the iss claim of every token minted here.
const tokenIssuer = "auctiond"

// tokenClaims are the claims of a participant or operator token. The
// subject is the participant id.
type tokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject with the given role, valid
// for ttl from now.
func IssueToken(secret, subject, role string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if secret == "" {
		return "", time.Time{}, errors.New("middleware: issue token: empty secret")
	}
	if subject == "" {
		return "", time.Time{}, errors.New("middleware: issue token: empty subject")
	}
	if role != RoleOperator && role != RoleParticipant {
		return "", time.Time{}, fmt.Errorf("middleware: issue token: unknown role %q", role)
	}

	now = now.UTC()
	exp := now.Add(ttl)
	claims := tokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("middleware: sign token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken validates raw against secret and returns the caller identity.
func ParseToken(secret, raw string) (Identity, error) {
	var claims tokenClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("middleware: parse token: %w", err)
	}
	if !tok.Valid || claims.Subject == "" {
		return Identity{}, errors.New("middleware: parse token: invalid claims")
	}
	if claims.Role != RoleOperator && claims.Role != RoleParticipant {
		return Identity{}, fmt.Errorf("middleware: parse token: unknown role %q", claims.Role)
	}
	return Identity{Subject: claims.Subject, Role: claims.Role}, nil
}
