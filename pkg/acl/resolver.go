package acl

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/paperbase/paperbase/pkg/observability"
)

const tracerName = "github.com/paperbase/paperbase/pkg/acl"

// GrantReader is the slice of the store the resolver needs. Read-only.
type GrantReader interface {
	// HasGrant reports whether any of the roles holds any of the
	// permissions directly on the target.
	HasGrant(ctx context.Context, target ObjectRef, roleIDs []int64, perms []Permission) (bool, error)

	// GrantedIDs returns the subset of ids of the given type carrying a
	// grant of perm to any of the roles.
	GrantedIDs(ctx context.Context, typeID TypeID, ids []int64, roleIDs []int64, perm Permission) ([]int64, error)
}

// RoleProvider supplies the roles a principal holds through its group
// memberships.
type RoleProvider interface {
	RolesFor(ctx context.Context, p Principal) ([]int64, error)
}

// GroupRoleProvider resolves roles through the store's role_groups table.
type GroupRoleProvider struct {
	store *Store
}

// NewGroupRoleProvider creates a RoleProvider backed by the grant store.
func NewGroupRoleProvider(store *Store) *GroupRoleProvider {
	return &GroupRoleProvider{store: store}
}

func (p *GroupRoleProvider) RolesFor(ctx context.Context, principal Principal) ([]int64, error) {
	return p.store.RolesForGroups(ctx, principal.Groups())
}

// Resolver evaluates access. It is stateless between calls: every check
// reads the injected registry, role provider, graph and grant store, so it
// is safe for unbounded concurrent use.
type Resolver struct {
	registry *Registry
	grants   GrantReader
	roles    RoleProvider
	graph    Graph
	cache    CheckCache
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// NewResolver creates a resolution engine over the given collaborators.
func NewResolver(registry *Registry, grants GrantReader, roles RoleProvider, graph Graph) *Resolver {
	return &Resolver{
		registry: registry,
		grants:   grants,
		roles:    roles,
		graph:    graph,
		tracer:   otel.Tracer(tracerName),
	}
}

// SetCheckCache installs an optional cache for CheckAccess outcomes. Wire
// the same cache as a store observer so mutations invalidate it.
func (r *Resolver) SetCheckCache(c CheckCache) {
	r.cache = c
}

// SetMetrics sets the metrics collector for check and restrict calls.
func (r *Resolver) SetMetrics(m *observability.Metrics) {
	r.metrics = m
}

// CheckAccess determines whether the principal may exercise any of the
// given permissions on the object. Returns nil when granted and
// ErrAccessDenied when not; any other error is a storage failure.
//
// Inherited access is tried before the direct grant, walking the registered
// inheritance chain one parent at a time. Either source suffices: the
// outcome is the union of both.
func (r *Resolver) CheckAccess(ctx context.Context, perms []Permission, principal Principal, obj ObjectRef) error {
	ctx, span := r.tracer.Start(ctx, "acl.CheckAccess", trace.WithAttributes(
		attribute.String("acl.target", obj.String()),
	))
	defer span.End()
	start := time.Now()

	err := r.checkAccess(ctx, perms, principal, obj)

	outcome := "granted"
	if errors.Is(err, ErrAccessDenied) {
		outcome = "denied"
	} else if err != nil {
		outcome = "error"
	}
	if r.metrics != nil {
		r.metrics.CheckTotal.WithLabelValues(string(r.registry.Canonical(obj.Type)), outcome).Inc()
		r.metrics.CheckDuration.Observe(time.Since(start).Seconds())
	}
	return err
}

func (r *Resolver) checkAccess(ctx context.Context, perms []Permission, principal Principal, obj ObjectRef) error {
	if principal.Superuser() {
		return nil
	}

	roleIDs, err := r.roles.RolesFor(ctx, principal)
	if err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return ErrAccessDenied
	}

	obj = r.registry.CanonicalRef(obj)

	if r.cache != nil {
		if allowed, ok := r.cache.Get(ctx, checkKey(obj, roleIDs, perms)); ok {
			r.countCache(true)
			if allowed {
				return nil
			}
			return ErrAccessDenied
		}
		r.countCache(false)
	}

	granted, err := r.hasAccess(ctx, perms, roleIDs, obj)
	if err != nil {
		return err
	}

	if r.cache != nil {
		r.cache.Set(ctx, obj, checkKey(obj, roleIDs, perms), granted)
	}
	if granted {
		return nil
	}
	return ErrAccessDenied
}

// hasAccess recurses up the inheritance chain. obj is already canonical.
func (r *Resolver) hasAccess(ctx context.Context, perms []Permission, roleIDs []int64, obj ObjectRef) (bool, error) {
	if _, err := r.registry.InheritanceRelation(obj.Type); err == nil {
		parent, ok, err := r.graph.Parent(ctx, obj)
		if err != nil {
			return false, err
		}
		if ok {
			granted, err := r.hasAccess(ctx, perms, roleIDs, r.registry.CanonicalRef(parent))
			if err != nil {
				return false, err
			}
			if granted {
				return true, nil
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	return r.grants.HasGrant(ctx, obj, roleIDs, perms)
}

// Restrict returns the subset of the object set the principal may exercise
// the permission on. The result is set-equivalent to calling CheckAccess on
// every element; the restriction runs as one bulk grant query per level of
// the inheritance chain, not per element.
func (r *Resolver) Restrict(ctx context.Context, perm Permission, principal Principal, set ObjectSet) (ObjectSet, error) {
	ctx, span := r.tracer.Start(ctx, "acl.Restrict", trace.WithAttributes(
		attribute.String("acl.type", string(set.Type())),
		attribute.String("acl.permission", perm.String()),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.RestrictDuration.Observe(time.Since(start).Seconds())
		}
	}()

	if principal.Superuser() {
		return set, nil
	}

	roleIDs, err := r.roles.RolesFor(ctx, principal)
	if err != nil {
		return nil, err
	}

	return r.restrict(ctx, perm, roleIDs, set)
}

func (r *Resolver) restrict(ctx context.Context, perm Permission, roleIDs []int64, set ObjectSet) (ObjectSet, error) {
	ids, err := set.IDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		// Nothing to restrict; skip the grant and parent lookups entirely.
		return set, nil
	}
	if len(roleIDs) == 0 {
		return set.Restrict(nil), nil
	}

	// Grants and inheritance are keyed by the canonical type, so a proxy
	// queryset restricts exactly like its base type.
	typ := r.registry.Canonical(set.Type())

	allowed := make(map[int64]struct{})
	direct, err := r.grants.GrantedIDs(ctx, typ, ids, roleIDs, perm)
	if err != nil {
		return nil, err
	}
	for _, id := range direct {
		allowed[id] = struct{}{}
	}

	if rel, err := r.registry.InheritanceRelation(typ); err == nil {
		parentOf, err := r.graph.Parents(ctx, typ, ids)
		if err != nil {
			return nil, err
		}

		if len(parentOf) > 0 {
			distinct := make(map[int64]struct{}, len(parentOf))
			for _, pid := range parentOf {
				distinct[pid] = struct{}{}
			}
			parentIDs := make([]int64, 0, len(distinct))
			for pid := range distinct {
				parentIDs = append(parentIDs, pid)
			}
			sort.Slice(parentIDs, func(i, j int) bool { return parentIDs[i] < parentIDs[j] })

			accessible, err := r.restrict(ctx, perm, roleIDs, NewStaticObjectSet(rel.Parent, parentIDs))
			if err != nil {
				return nil, err
			}
			accessibleIDs, err := accessible.IDs(ctx)
			if err != nil {
				return nil, err
			}
			accessibleSet := make(map[int64]struct{}, len(accessibleIDs))
			for _, pid := range accessibleIDs {
				accessibleSet[pid] = struct{}{}
			}

			for child, pid := range parentOf {
				if _, ok := accessibleSet[pid]; ok {
					allowed[child] = struct{}{}
				}
			}
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	result := make([]int64, 0, len(allowed))
	for id := range allowed {
		result = append(result, id)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return set.Restrict(result), nil
}

func (r *Resolver) countCache(hit bool) {
	if r.metrics == nil {
		return
	}
	if hit {
		r.metrics.CacheHitsTotal.Inc()
	} else {
		r.metrics.CacheMissesTotal.Inc()
	}
}
