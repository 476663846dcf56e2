package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	issuer = "driftchat"
	// AccessTokenDuration is the lifetime of a session token.
	AccessTokenDuration = 7 * 24 * time.Hour
)

// GenerateAccessToken signs a session token for the given user.
func GenerateAccessToken(userID int32, secret string, now time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.Itoa(int(userID)),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenDuration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return signed, nil
}

// ParseAccessToken validates a session token and returns the user ID.
func ParseAccessToken(tokenString, secret string) (int32, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return 0, errors.Wrap(err, "invalid access token")
	}
	if !token.Valid {
		return 0, errors.New("invalid access token")
	}
	userID, err := strconv.Atoi(claims.Subject)
	if err != nil {
		return 0, errors.Wrap(err, "invalid token subject")
	}
	return int32(userID), nil
}
