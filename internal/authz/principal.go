package authz

import "time"

// TemporaryGrant is a time-boxed permission grant attached to a principal.
// A grant past its expiry contributes no permissions.
type TemporaryGrant struct {
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expires_at"`
	GrantedBy   string    `json:"granted_by"`
	Reason      string    `json:"reason"`
}

// Active reports whether the grant still contributes permissions at now.
func (g TemporaryGrant) Active(now time.Time) bool {
	return g.ExpiresAt.After(now)
}

// Principal is the authenticated identity bound to a session.
type Principal struct {
	ID                string           `json:"id"`
	Role              Role             `json:"role"`
	CustomPermissions []string         `json:"custom_permissions,omitempty"`
	TemporaryGrants   []TemporaryGrant `json:"temporary_grants,omitempty"`
}
