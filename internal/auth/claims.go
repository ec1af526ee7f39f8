package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// District and Section are informational; workflow guards key on Role and
// on case ownership only.
type Claims struct {
	jwt.RegisteredClaims

	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	District  string    `json:"district,omitempty"`
	Section   string    `json:"section,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// Identity is the authenticated caller as carried through a request.
type Identity struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	District string `json:"district,omitempty"`
	Section  string `json:"section,omitempty"`
}

func (c Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Role: c.Role, District: c.District, Section: c.Section}
}
