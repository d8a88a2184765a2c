package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenIssuer = "noircafe-backend"
	// AccessTokenTTL is the lifetime of an issued access token.
	AccessTokenTTL = 30 * time.Minute
	// RefreshGrace is how long after expiry a token may still be exchanged.
	RefreshGrace = 7 * 24 * time.Hour
)

var ErrRefreshWindowClosed = errors.New("token expired beyond refresh window")

type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func getJWTSecret() string {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		panic("FATAL: JWT_SECRET environment variable is not set. Refusing to start with an insecure configuration.")
	}
	return secret
}

// GenerateToken signs an access token and returns it with its expiry.
func GenerateToken(uid, email, role string) (string, time.Time, error) {
	secret := getJWTSecret()
	now := time.Now()
	expiresAt := now.Add(AccessTokenTTL)

	claims := Claims{
		UID:   uid,
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    TokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(getJWTSecret()), nil
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFunc)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// ValidateTokenAllowExpired accepts a correctly signed token whose only
// problem is expiry, as long as it expired less than RefreshGrace ago.
func ValidateTokenAllowExpired(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(tokenString)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}

	parsed := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, err := parser.ParseWithClaims(tokenString, parsed, keyFunc); err != nil {
		return nil, err
	}
	if parsed.ExpiresAt == nil || time.Since(parsed.ExpiresAt.Time) > RefreshGrace {
		return nil, ErrRefreshWindowClosed
	}
	return parsed, nil
}
