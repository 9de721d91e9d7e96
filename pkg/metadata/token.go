package metadata

import (
	"errors"
	"fmt"
	"time"

	"github.com/JaneliaSciComp/neuronbridge-cdm-upload/pkg/naming"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken is returned when no JACS token was configured.
var ErrMissingToken = errors.New("missing token - set in JACS_JWT environment variable")

// Operator is the identity carried by a JACS token.
type Operator struct {
	FullName  string
	ExpiresAt time.Time
}

// CheckToken decodes a JACS JWT without verifying its signature and makes sure
// it has not expired at now. Every failure is fatal.
func CheckToken(token string, now time.Time) (Operator, error) {
	if token == "" {
		return Operator{}, naming.Fatal(ErrMissingToken)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Operator{}, naming.Fatal(fmt.Errorf("could not decode token: %w", err))
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return Operator{}, naming.Fatal(fmt.Errorf("token has no expiration"))
	}
	if !now.Before(exp.Time) {
		return Operator{}, naming.Fatal(fmt.Errorf("token expired at %s", exp.Time.Format(time.RFC3339)))
	}
	name, _ := claims["full_name"].(string)
	return Operator{FullName: name, ExpiresAt: exp.Time}, nil
}
