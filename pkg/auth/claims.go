package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/abdul-hamid-achik/luzimarket-ledger/pkg/enums"
)

// AccessTokenPayload is what a caller supplies when minting. JTI is generated
// when blank.
type AccessTokenPayload struct {
	Subject string
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims is the JWT body issued to operators and services.
type AccessTokenClaims struct {
	Role enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass; jwt calls it through
// jwt.ClaimsValidator.
func (c AccessTokenClaims) Validate() error {
	if strings.TrimSpace(c.Subject) == "" {
		return fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("%w: invalid actor role %q", ErrInvalidToken, c.Role)
	}
	return nil
}
