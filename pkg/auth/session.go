package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionClaims are the JWT claims of a session token
type SessionClaims struct {
	OrganizationID int64    `json:"org"`
	Email          string   `json:"email,omitempty"`
	IsOwner        bool     `json:"owner"`
	IsSuperAdmin   bool     `json:"super"`
	Permissions    []string `json:"perms"`
	TokenVersion   int      `json:"ver"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies session tokens with HS256
type SessionIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionIssuer creates an issuer for tokens valid for ttl
func NewSessionIssuer(secret []byte, issuer string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token embedding the caller's permissions and token version
func (i *SessionIssuer) Issue(ac *AuthContext) (*Session, error) {
	if ac == nil || ac.UserID <= 0 {
		return nil, errors.New("user is required")
	}
	if len(i.secret) == 0 {
		return nil, errors.New("session secret is not configured")
	}

	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	perms := ac.Permissions.Names()

	claims := SessionClaims{
		OrganizationID: ac.OrganizationID,
		Email:          ac.Email,
		IsOwner:        ac.IsOwner,
		IsSuperAdmin:   ac.IsSuperAdmin,
		Permissions:    perms,
		TokenVersion:   ac.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(ac.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		Token:       signed,
		ExpiresAt:   expiresAt,
		UserID:      ac.UserID,
		Permissions: perms,
	}, nil
}

// Parse verifies the signature, issuer and expiry of token and returns the
// caller it describes. It does not check the token version against storage.
func (i *SessionIssuer) Parse(token string) (*AuthContext, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}

	var perms PermissionSet
	if claims.Permissions != nil {
		perms = NewPermissionSet(claims.Permissions...)
	}

	return &AuthContext{
		UserID:         userID,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
		IsOwner:        claims.IsOwner,
		IsSuperAdmin:   claims.IsSuperAdmin,
		TokenVersion:   claims.TokenVersion,
		Permissions:    perms,
		TokenID:        claims.ID,
		ExpiresAt:      claims.ExpiresAt.Time,
	}, nil
}
