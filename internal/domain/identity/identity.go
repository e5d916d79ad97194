package identity

import (
	"context"
	"net/http"
	"strings"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Forwarded identity headers, set by a trusted upstream gateway that has
// already verified the caller. The service trusts its network perimeter to
// keep these unspoofable; the switch lives in config for deployments
// without a gateway.
const (
	HeaderUserID    = "x-user-id"
	HeaderUserName  = "x-user-name"
	HeaderUserEmail = "x-user-email"
	HeaderUserRole  = "x-user-role"
	HeaderUserTeams = "x-user-teams"
)

// Identity is the principal attributed to a request. It is derived per
// request and never persisted.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   string
	Teams  []string
}

// Anonymous is the identity of an unauthenticated caller.
func Anonymous() Identity {
	return Identity{Role: RoleUser}
}

// Authenticated reports whether the caller presented a verified identity.
func (id Identity) Authenticated() bool {
	return id.UserID != ""
}

// IsAdmin reports whether the caller holds the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == RoleAdmin
}

// FromHeaders decodes a forwarded identity. The second return value is
// false when no x-user-id header is present.
func FromHeaders(h http.Header) (Identity, bool) {
	userID := strings.TrimSpace(h.Get(HeaderUserID))
	if userID == "" {
		return Anonymous(), false
	}

	id := Identity{
		UserID: userID,
		Name:   h.Get(HeaderUserName),
		Email:  h.Get(HeaderUserEmail),
		Role:   h.Get(HeaderUserRole),
	}
	if id.Role == "" {
		id.Role = RoleUser
	}
	if teams := h.Get(HeaderUserTeams); teams != "" {
		for _, team := range strings.Split(teams, ",") {
			if team = strings.TrimSpace(team); team != "" {
				id.Teams = append(id.Teams, team)
			}
		}
	}
	return id, true
}

type contextKey struct{}

// NewContext attaches the identity to the request context.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the caller identity, or the anonymous identity when
// none was attached.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(contextKey{}).(Identity); ok {
		return id
	}
	return Anonymous()
}
