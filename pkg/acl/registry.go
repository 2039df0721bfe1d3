package acl

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the process-wide, startup-time type declarations the
// resolution engine operates over: which permissions apply to a type, which
// relation a type inherits access checks through, and which types are
// proxies of another. A Registry is built once at startup and injected into
// the engine; tests construct a fresh one per case.
type Registry struct {
	mu      sync.RWMutex
	types   map[TypeID]TypeInfo
	perms   map[TypeID]map[Permission]struct{}
	inherit map[TypeID]Relation
	proxies map[TypeID]TypeID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		types:   make(map[TypeID]TypeInfo),
		perms:   make(map[TypeID]map[Permission]struct{}),
		inherit: make(map[TypeID]Relation),
		proxies: make(map[TypeID]TypeID),
	}
}

// RegisterType declares a storable type and where its rows live.
func (r *Registry) RegisterType(id TypeID, info TypeInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[id]; ok {
		return fmt.Errorf("type %q already registered", id)
	}
	if info.Table == "" || info.IDColumn == "" {
		return fmt.Errorf("type %q: table and id column are required", id)
	}
	r.types[id] = info
	return nil
}

// RegisterProxy declares id as an alternate authorization-transparent
// identity over canonical. Grants, applicability and inheritance resolved
// for the proxy fall back to the canonical type.
func (r *Registry) RegisterProxy(id, canonical TypeID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.proxies[canonical]; ok {
		return fmt.Errorf("proxy %q: canonical type %q is itself a proxy", id, canonical)
	}
	if _, ok := r.proxies[id]; ok {
		return fmt.Errorf("proxy %q already registered", id)
	}
	r.proxies[id] = canonical
	return nil
}

// RegisterPermissions accumulates permissions into the set applicable to a
// type. Re-registration is a no-op union, never an error.
func (r *Registry) RegisterPermissions(id TypeID, perms ...Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.perms[id]
	if !ok {
		set = make(map[Permission]struct{})
		r.perms[id] = set
	}
	for _, p := range perms {
		set[p] = struct{}{}
	}
}

// RegisterInheritance declares the parent-accessor relation for a type.
// Registering a second relation for the same type is an error, as is a
// relation that would close a cycle in the inheritance graph.
func (r *Registry) RegisterInheritance(id TypeID, rel Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.proxies[id]; ok {
		return fmt.Errorf("type %q is a proxy and cannot declare inheritance", id)
	}
	if existing, ok := r.inherit[id]; ok {
		return fmt.Errorf("type %q already inherits through %q", id, existing.Column)
	}

	// Walk up from the declared parent; reaching id again means the new
	// edge would close a cycle.
	seen := map[TypeID]struct{}{id: {}}
	for cursor := r.canonicalLocked(rel.Parent); ; {
		if _, ok := seen[cursor]; ok {
			return fmt.Errorf("type %q: inheritance through %q creates a cycle", id, rel.Column)
		}
		seen[cursor] = struct{}{}
		next, ok := r.inherit[cursor]
		if !ok {
			break
		}
		cursor = r.canonicalLocked(next.Parent)
	}

	r.inherit[id] = rel
	return nil
}

// Canonical resolves a proxy type to its base type. Non-proxy types resolve
// to themselves.
func (r *Registry) Canonical(id TypeID) TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.canonicalLocked(id)
}

func (r *Registry) canonicalLocked(id TypeID) TypeID {
	if canonical, ok := r.proxies[id]; ok {
		return canonical
	}
	return id
}

// CanonicalRef rewrites an ObjectRef to its canonical type. Applied once at
// the engine boundary so grants keyed by the base type match.
func (r *Registry) CanonicalRef(obj ObjectRef) ObjectRef {
	obj.Type = r.Canonical(obj.Type)
	return obj
}

// TypeInfo returns the storage description for a type, following the proxy
// fallback.
func (r *Registry) TypeInfo(id TypeID) (TypeInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if info, ok := r.types[id]; ok {
		return info, nil
	}
	if info, ok := r.types[r.canonicalLocked(id)]; ok {
		return info, nil
	}
	return TypeInfo{}, fmt.Errorf("type %q: %w", id, ErrNotFound)
}

// ApplicablePermissions returns the permissions registered for a type,
// sorted by their string form. A type registered through a proxy falls back
// to its canonical type; an unregistered type yields an empty set, not an
// error.
func (r *Registry) ApplicablePermissions(id TypeID) []Permission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.perms[id]
	if !ok {
		set = r.perms[r.canonicalLocked(id)]
	}

	perms := make([]Permission, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].String() < perms[j].String() })
	return perms
}

// InheritanceRelation returns the declared parent relation for a type,
// following the proxy fallback. Absence is the common case and is reported
// as ErrNotFound.
func (r *Registry) InheritanceRelation(id TypeID) (Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rel, ok := r.inherit[id]; ok {
		return rel, nil
	}
	if rel, ok := r.inherit[r.canonicalLocked(id)]; ok {
		return rel, nil
	}
	return Relation{}, fmt.Errorf("type %q has no inheritance relation: %w", id, ErrNotFound)
}

// DescendantTypes returns the registered types whose inheritance chains
// pass through id: checks on objects of these types can depend on grants
// held by an object of type id. Sorted; id itself is not included.
func (r *Registry) DescendantTypes(id TypeID) []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ancestor := r.canonicalLocked(id)
	var descendants []TypeID
	for child := range r.inherit {
		for cursor := child; ; {
			rel, ok := r.inherit[cursor]
			if !ok {
				break
			}
			cursor = r.canonicalLocked(rel.Parent)
			if cursor == ancestor {
				descendants = append(descendants, child)
				break
			}
		}
	}
	sort.Slice(descendants, func(i, j int) bool { return descendants[i] < descendants[j] })
	return descendants
}

// Types returns the ids of all registered non-proxy types.
func (r *Registry) Types() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]TypeID, 0, len(r.types))
	for id := range r.types {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
