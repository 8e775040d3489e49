package jwtutil

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go/v4"
)

// SignedString returns the complete, signed token
func SignedString(username, secret string, expiration time.Duration) (string, error) {
	token := jwt.New(jwt.GetSigningMethod("HS512"))
	token.Claims.(jwt.MapClaims)["username"] = username
	token.Claims.(jwt.MapClaims)["exp"] = time.Now().Add(expiration).Unix()
	return token.SignedString([]byte(secret))
}

// ParseToken parses a JWT token.
func ParseToken(tokenString, secret string) (jwt.MapClaims, error) {
	keyLookupFn := func(token *jwt.Token) (interface{}, error) {
		// Check for expected signing method.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}

	// Parse and validate the token.
	token, err := jwt.Parse(tokenString, keyLookupFn)
	if err != nil {
		return nil, err
	} else if !token.Valid {
		return nil, errors.New("invalid token")
	}

	// Make sure an expiration was set on the token.
	claims := token.Claims.(jwt.MapClaims)
	if exp, ok := claims["exp"].(float64); !ok || exp <= 0.0 {
		return nil, errors.New("token expiration required")
	}

	return claims, nil
}
