// Package domain holds the Authorization Engine's entities: permission grants and tool bindings.
package domain

import "time"

// SubjectKind distinguishes a grant attached to a specific user from one attached to a role.
type SubjectKind string

const (
	SubjectRole SubjectKind = "role"
	SubjectUser SubjectKind = "user"
)

// ResourceType enumerates the kinds of resource a grant or tool binding can reference.
type ResourceType string

const (
	ResourceWebSearch ResourceType = "web_search"
	ResourceVectorDB  ResourceType = "vector_db"
	ResourceDatabase  ResourceType = "database"
)

// Action is a right a grant confers over a resource.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// Built-in role names. admin is never stored as a grant subject — it is treated as an implicit
// grant of "*" with every action (spec.md §3).
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
	RoleGuest = "guest"
)

// Grant is a permission grant: a subject is allowed the given actions on resources matching
// resource_pattern within resource_type, optionally further constrained by conditions (a Rego
// snippet evaluated against the request).
type Grant struct {
	ID              string
	SubjectKind     SubjectKind
	Subject         string
	ResourceType    ResourceType
	ResourcePattern string
	Actions         []Action
	Conditions      string
	GrantedAt       time.Time
	ExpiresAt       *time.Time
}

// Expired reports whether the grant's TTL, if any, has elapsed as of now.
func (g *Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// HasAction reports whether the grant includes action among its actions.
func (g *Grant) HasAction(action Action) bool {
	for _, a := range g.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// ToolBinding is the static mapping from a dispatchable tool name to the resource type, action,
// and minimum roles required to invoke it. Public tools (Public=true) bypass authorization
// entirely.
type ToolBinding struct {
	ToolName     string
	ResourceType ResourceType
	Action       Action
	MinimumRoles []string
	Public       bool
}
