package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xelth-com/orderledger/internal/reqctx"
)

// GenerateToken signs an access token for p. Login and token issuance live in
// the session service; this is used by tools and tests.
func GenerateToken(p reqctx.Principal, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":   p.ID,
		"role": p.Role,
		"name": p.Name,
		"exp":  time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and validates a token
func ValidateToken(tokenString string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// PrincipalFromClaims maps token claims onto the request principal
func PrincipalFromClaims(claims jwt.MapClaims) (reqctx.Principal, error) {
	role, _ := claims["role"].(string)
	if role == "" {
		return reqctx.Principal{}, errors.New("token has no role")
	}

	var id uint
	switch v := claims["id"].(type) {
	case float64:
		if v < 0 {
			return reqctx.Principal{}, fmt.Errorf("invalid principal id %v", v)
		}
		id = uint(v)
	case nil:
	default:
		return reqctx.Principal{}, fmt.Errorf("invalid principal id %v", v)
	}

	name, _ := claims["name"].(string)
	return reqctx.Principal{ID: id, Role: role, Name: name}, nil
}
