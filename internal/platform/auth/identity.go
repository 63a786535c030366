package auth

import (
	"context"
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Roles that may operate the order desk.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// Identity is the verified operator behind a request.
type Identity struct {
	UID   string
	Email string
	// Roles are lower-cased and unique.
	Roles []string

	token *firebaseauth.Token
}

// newIdentity reads the uid, email and roles out of a verified token. Roles from every claim in
// roleClaims are merged in claim order.
func newIdentity(token *firebaseauth.Token, roleClaims []string) *Identity {
	identity := &Identity{UID: token.UID, token: token}
	if email, ok := token.Claims[defaultEmailClaim].(string); ok {
		identity.Email = strings.TrimSpace(email)
	}
	for _, claim := range roleClaims {
		identity.Roles = appendRoles(identity.Roles, token.Claims[claim])
	}
	return identity
}

// Token returns the decoded ID token, or nil for identities built without one.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

func (i *Identity) HasRole(role string) bool {
	role = normaliseRole(role)
	return i != nil && role != "" && slices.Contains(i.Roles, role)
}

func (i *Identity) HasAnyRole(roles ...string) bool {
	return slices.ContainsFunc(roles, i.HasRole)
}

// appendRoles adds the roles carried by one claim value: a comma separated string, a list of
// strings, or a map of role name to bool where only true entries count.
func appendRoles(roles []string, raw any) []string {
	add := func(value string) {
		if role := normaliseRole(value); role != "" && !slices.Contains(roles, role) {
			roles = append(roles, role)
		}
	}
	switch v := raw.(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			add(part)
		}
	case []string:
		for _, item := range v {
			add(item)
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case map[string]any:
		var enabled []string
		for name, flag := range v {
			if on, ok := flag.(bool); ok && on {
				enabled = append(enabled, name)
			}
		}
		slices.Sort(enabled)
		for _, name := range enabled {
			add(name)
		}
	}
	return roles
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

type identityKey struct{}

// WithIdentity stores the identity for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity, identity != nil
}
