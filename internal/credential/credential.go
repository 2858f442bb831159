// Package credential owns the session's authentication material: the
// access/refresh token pair, the identity decoded from the access
// token, and durable persistence so a reload restores the signed-in
// state. Other packages never touch tokens directly; they either read
// the identity or go through the gateway, which pulls the current
// token from here.
package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the profile decoded from the access token claims.
type Identity struct {
	ID          string `json:"id"`
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phoneNumber"`
}

// Credential is the complete authentication record for one session. It
// is persisted as a single document so a torn state (token without
// identity) can never be observed.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	Identity     Identity  `json:"identity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// tokenClaims mirrors the claim names the backend puts into its access
// tokens.
type tokenClaims struct {
	NameID string `json:"nameid"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Phone  string `json:"phone"`
	jwt.RegisteredClaims
}

// decodeToken extracts the identity and expiry from an access token
// without verifying its signature. The backend is the issuer and the
// sole verifier; locally the token is only a carrier of display data
// and an expiry hint.
func decodeToken(token string) (Identity, time.Time, error) {
	var claims tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, time.Time{}, fmt.Errorf("decode access token: %w", err)
	}

	role := claims.Role
	if role == "" {
		role = "Guest"
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return Identity{
		ID:          claims.NameID,
		FullName:    claims.Name,
		Email:       claims.Email,
		Role:        role,
		PhoneNumber: claims.Phone,
	}, expiresAt, nil
}
