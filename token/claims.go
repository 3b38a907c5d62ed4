package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token payload: sub, scope, groups, dept,
// riskScore, iat, exp, carried via jwt.RegisteredClaims for the
// standard fields.
type Claims struct {
	Scope     string   `json:"scope"`
	Groups    []string `json:"groups"`
	Dept      string   `json:"dept,omitempty"`
	RiskScore int      `json:"riskScore"`
	jwt.RegisteredClaims
}

// Identity is what a credential lookup returns on successful
// authentication — the attributes that become token claims.
type Identity struct {
	Subject      string
	Groups       []string
	Dept         string
	RiskScore    int
	DefaultScope []string
}

func newClaims(id Identity, scope []string, now time.Time, ttl time.Duration) *Claims {
	return &Claims{
		Scope:     joinScope(scope),
		Groups:    id.Groups,
		Dept:      id.Dept,
		RiskScore: id.RiskScore,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func joinScope(scope []string) string {
	if len(scope) == 0 {
		return "read"
	}
	return strings.Join(scope, " ")
}
