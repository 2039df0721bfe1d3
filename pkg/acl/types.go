package acl

import (
	"fmt"
	"strings"
	"time"
)

// Permission represents a single named capability within a namespace,
// e.g. "documents.edit". Permissions are registered in-process at startup
// and are immutable after registration.
type Permission struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String returns the canonical "namespace.name" form of the permission.
func (p Permission) String() string {
	return p.Namespace + "." + p.Name
}

// ParsePermission parses a "namespace.name" string into a Permission.
func ParsePermission(s string) (Permission, error) {
	namespace, name, ok := strings.Cut(s, ".")
	if !ok || namespace == "" || name == "" {
		return Permission{}, fmt.Errorf("invalid permission %q: expected namespace.name", s)
	}
	return Permission{Namespace: namespace, Name: name}, nil
}

// TypeID identifies a registered object type ("document", "folder", ...).
// Proxy types get their own TypeID and resolve to a canonical type through
// the registry.
type TypeID string

// TypeInfo describes where instances of a type are stored so the queryset
// and object-graph adapters can build queries against them.
type TypeInfo struct {
	Table    string `json:"table"`
	IDColumn string `json:"id_column"`
}

// ObjectRef is a polymorphic reference to exactly one entity of a
// registered type.
type ObjectRef struct {
	Type TypeID `json:"type"`
	ID   int64  `json:"id"`
}

// String returns a "type#id" form useful for logs and audit records.
func (o ObjectRef) String() string {
	return fmt.Sprintf("%s#%d", o.Type, o.ID)
}

// Relation declares that instances of a type inherit access checks from the
// object referenced by Column on their row, which is of type Parent.
type Relation struct {
	Parent TypeID `json:"parent"`
	Column string `json:"column"`
}

// Role is a named holder of access grants. Users hold roles indirectly
// through group membership (see role_groups).
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccessGrant is the persisted relation {role, permission set, target
// object}. At most one grant exists per (target, role) pair; an empty
// permission set is valid and grants nothing.
type AccessGrant struct {
	ID          int64        `json:"id"`
	Target      ObjectRef    `json:"target"`
	RoleID      int64        `json:"role_id"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPermission reports whether the grant's permission set contains p.
func (g *AccessGrant) HasPermission(p Permission) bool {
	for _, held := range g.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// Principal is the identity the engine authorizes. The engine only needs
// the bypass flag and the group memberships; authentication and user
// management live outside this module.
type Principal interface {
	// Superuser reports whether the principal bypasses all access checks.
	Superuser() bool

	// Groups returns the names of the groups the principal belongs to.
	Groups() []string
}

// StaticPrincipal is a Principal with fixed attributes, convenient for
// task-layer callers and tests.
type StaticPrincipal struct {
	IsSuperuser bool
	GroupNames  []string
}

func (p StaticPrincipal) Superuser() bool  { return p.IsSuperuser }
func (p StaticPrincipal) Groups() []string { return p.GroupNames }
