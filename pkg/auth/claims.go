package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sewasetu/sewasetu-backend/pkg/enums"
)

// Principal is the typed identity the auth boundary produces once per request.
// Downstream flows receive it as a parameter instead of re-deriving roles from
// raw claims.
type Principal struct {
	Role    enums.ActorRole
	ActorID uuid.UUID
}

// IsPartner reports whether the principal is a field partner.
func (p Principal) IsPartner() bool {
	return p.Role == enums.ActorRolePartner
}

// IsAdmin reports whether the principal is a back-office admin.
func (p Principal) IsAdmin() bool {
	return p.Role == enums.ActorRoleAdmin
}

// PartnerID returns the partner identity, or uuid.Nil for non-partner actors.
func (p Principal) PartnerID() uuid.UUID {
	if !p.IsPartner() {
		return uuid.Nil
	}
	return p.ActorID
}

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	ActorID uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	ActorID uuid.UUID       `json:"actor_id"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts validated claims into the request principal.
func (c *AccessTokenClaims) Principal() Principal {
	if c == nil {
		return Principal{}
	}
	return Principal{Role: c.Role, ActorID: c.ActorID}
}
