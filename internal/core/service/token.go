package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vetclinic/portal/internal/core/domain"
)

// TokenExpiry decodes the exp claim of a bearer token without verifying its
// signature; the portal holds no key and only needs the expiry instant.
// A token without exp is reported as invalid.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", domain.ErrTokenInvalid)
	}
	return exp.Time, nil
}
