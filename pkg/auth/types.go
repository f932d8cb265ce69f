package auth

import "time"

// User represents a registered account.
type User struct {
	ID          string    `json:"user_id"`
	APIKey      string    `json:"-"` // never exposed by any read endpoint
	ContactName string    `json:"contact_name"`
	Roles       []string  `json:"roles"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role names with reserved semantics.
const (
	RolePublic   = "public"
	RoleAdmin    = "admin"
	RoleInternal = "internal"
)

// Scope represents a capability derived from the caller's roles.
type Scope string

const (
	ScopeAnonymous     Scope = "anonymous"
	ScopeAuthenticated Scope = "authenticated"
	ScopeAdmin         Scope = "admin"
)

// Context holds the resolved identity for one request. It is constructed
// once and never mutated afterwards.
type Context struct {
	user   *User
	scopes []Scope
}

// AnonymousContext is the identity of an unauthenticated caller.
func AnonymousContext() *Context {
	return &Context{scopes: []Scope{ScopeAnonymous}}
}

// NewContext derives the scope set for an authenticated user.
func NewContext(user *User) *Context {
	scopes := []Scope{ScopeAuthenticated}
	for _, role := range user.Roles {
		if role == RoleAdmin {
			scopes = append(scopes, ScopeAdmin)
		} else {
			scopes = append(scopes, Scope(role))
		}
	}
	return &Context{user: user, scopes: scopes}
}

// User returns the authenticated user, or nil for anonymous callers.
func (c *Context) User() *User {
	return c.user
}

// UserID returns the authenticated user id, or "" for anonymous callers.
func (c *Context) UserID() string {
	if c.user == nil {
		return ""
	}
	return c.user.ID
}

// Scopes returns a copy of the derived scope set.
func (c *Context) Scopes() []Scope {
	out := make([]Scope, len(c.scopes))
	copy(out, c.scopes)
	return out
}

// IsAnonymous reports whether the caller did not authenticate.
func (c *Context) IsAnonymous() bool {
	return c.user == nil
}

// HasScope reports whether the caller holds the given scope. Admin is a
// superset of every product scope.
func (c *Context) HasScope(scope Scope) bool {
	for _, s := range c.scopes {
		if s == ScopeAdmin || s == scope {
			return true
		}
	}
	return false
}

// Authorized reports whether the caller may access a product guarded by the
// given role name. An empty or "public" role is open to everyone.
func (c *Context) Authorized(productRole string) bool {
	if productRole == "" || productRole == RolePublic {
		return true
	}
	return c.HasScope(Scope(productRole))
}
