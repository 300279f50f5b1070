package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OperatorTokenPayload captures the data available when minting an operator JWT.
type OperatorTokenPayload struct {
	Operator string
	Role     enums.OperatorRole
	JTI      string
}

// OperatorClaims represents the typed JWT presented to the admin endpoints.
// The operator identity is carried in the registered subject.
type OperatorClaims struct {
	Role enums.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// Operator returns the subject the token was issued to.
func (c *OperatorClaims) Operator() string {
	return c.Subject
}
