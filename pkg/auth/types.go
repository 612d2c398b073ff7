package auth

import (
	"sort"
	"time"
)

// User is a person belonging to exactly one organization
type User struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organizationId"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	IsOwner        bool      `json:"isOwner"`
	IsSuperAdmin   bool      `json:"isSuperAdmin"`
	TokenVersion   int       `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PermissionSet is a set of permission action names. A nil set means the
// caller carries no permission information at all.
type PermissionSet map[string]struct{}

// NewPermissionSet builds a non-nil set from names
func NewPermissionSet(names ...string) PermissionSet {
	set := make(PermissionSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// Has reports whether name is in the set
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the set's members in sorted order
func (s PermissionSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AuthContext is the authenticated caller of a request, as resolved at login
// time and carried inside the session token.
type AuthContext struct {
	UserID         int64         `json:"userId"`
	OrganizationID int64         `json:"organizationId"`
	Email          string        `json:"email"`
	IsOwner        bool          `json:"isOwner"`
	IsSuperAdmin   bool          `json:"isSuperAdmin"`
	TokenVersion   int           `json:"tokenVersion"`
	Permissions    PermissionSet `json:"-"`
	TokenID        string        `json:"-"`
	ExpiresAt      time.Time     `json:"-"`
}

// Session is what login and registration hand back to the client
type Session struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UserID      int64     `json:"userId"`
	Permissions []string  `json:"permissions"`
}
