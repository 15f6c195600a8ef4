package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSubject extracts the sub claim from a bearer token without
// verifying its signature. Verification belongs to the identity pool
// and the quota endpoint; the client only needs the subject for quota
// accounting and key derivation.
func TokenSubject(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("identity: parsing token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("identity: token carries no sub claim")
	}
	return claims.Subject, nil
}
