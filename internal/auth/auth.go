// Package auth models the identity and role information the control core
// consumes (C1's integration surface). Issuing credentials, password
// verification, and user lookup remain external collaborators (see §1 of the
// specification); this package only issues and validates the bearer token
// that carries {sub, name, role, exp} once a caller is otherwise known-good.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tabledelivery/control-core/internal/apperr"
)

// Role is a total order Viewer < Operator < Admin, matching the literal
// strings the wire format uses.
type Role string

const (
	RoleViewer   Role = "Viewer"
	RoleOperator Role = "Operator"
	RoleAdmin    Role = "Admin"
)

// rank gives each role an ordinal so callers can compare with >= rather than
// re-deriving the order from string comparisons scattered across handlers.
func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 2
	case RoleOperator:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether r is the same role as, or outranks, min.
func (r Role) AtLeast(min Role) bool { return r.rank() >= min.rank() }

func (r Role) IsAdmin() bool    { return r == RoleAdmin }
func (r Role) IsOperator() bool { return r == RoleOperator }
func (r Role) CanOperate() bool { return r == RoleAdmin || r == RoleOperator }

// Claims is the authenticated principal threaded through request context by
// the bearer middleware (see internal/middleware). Handlers consume it by
// type rather than re-parsing the token.
type Claims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	Role Role   `json:"role"`
	Exp  int64  `json:"exp"`
}

type jwtClaims struct {
	Sub  string `json:"sub"`
	Name string `json:"name"`
	Role Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates the bearer tokens. The secret and default
// lifetime come from configuration (JWT_SECRET, JWT_EXPIRY_HOURS).
type Issuer struct {
	secret []byte
	expiry time.Duration
}

func NewIssuer(secret string, expiry time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), expiry: expiry}
}

// Issue mints a token for a user that has already been authenticated by the
// external login flow. If userID is empty a random one is generated, mainly
// useful for tests and for the telemetry/discovery paths that never need a
// human identity.
func (i *Issuer) Issue(userID, name string, role Role) (string, error) {
	if userID == "" {
		userID = uuid.NewString()
	}
	now := time.Now()
	claims := jwtClaims{
		Sub:  userID,
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Validate parses and verifies a bearer token, returning the Claims it
// carries. Expired or malformed tokens are reported as AuthInvalid, matching
// the 401 mapping in the specification's error table.
func (i *Issuer) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, apperr.AuthInvalid("invalid bearer token")
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok {
		return nil, apperr.AuthInvalid("invalid bearer token")
	}
	return &Claims{Sub: claims.Sub, Name: claims.Name, Role: claims.Role, Exp: claims.ExpiresAt.Unix()}, nil
}
