package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Tenant invariant: TeamID must be present for all agent activity; cross-team
// capabilities are server-side authorization checks, never claim flags.
type Claims struct {
	jwt.RegisteredClaims

	AgentID   string    `json:"agent_id"`
	TeamID    string    `json:"team_id"`
	Role      string    `json:"role"`
	TokenType TokenType `json:"token_type"`
}
