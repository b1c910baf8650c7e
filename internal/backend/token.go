package backend

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSubject extracts the subject of a bearer token without verifying
// it. The Backend Service verifies the token; the runtime only uses the
// subject to tag its logs.
func TokenSubject(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if uid, ok := claims["user_id"]; ok {
		return fmt.Sprint(uid)
	}
	return ""
}
