// Package security provides JWT token utilities
package security

import (
	"errors"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/user"
	"github.com/golang-jwt/jwt/v4"
)

// ValidateJWT validates a JWT token and returns the claims.
func ValidateJWT(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token")
}

// GenerateProfileToken creates a signed token binding a visitor to its lead.
// Clients present it on later requests to recover identity without a fresh
// identify call.
func GenerateProfileToken(profile *user.Profile, jwtSecret string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"anonymousId": profile.AnonymousID,
		"leadId":      profile.LeadID,
		"hasEmail":    profile.HasEmail,
		"hasPhone":    profile.HasPhone,
		"iat":         now.Unix(),
		"exp":         now.Add(30 * 24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(jwtSecret))
}

// GetProfileFromClaims extracts a profile from JWT claims.
func GetProfileFromClaims(claims jwt.MapClaims) *user.Profile {
	anonymousID, ok := claims["anonymousId"].(string)
	if !ok {
		return nil
	}
	leadID, ok := claims["leadId"].(string)
	if !ok {
		return nil
	}
	hasEmail, _ := claims["hasEmail"].(bool)
	hasPhone, _ := claims["hasPhone"].(bool)
	return &user.Profile{
		AnonymousID: anonymousID,
		LeadID:      leadID,
		HasEmail:    hasEmail,
		HasPhone:    hasPhone,
	}
}
