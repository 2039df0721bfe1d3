// Package acl implements object-level access control for the Paperbase
// document repository: a three-tier model binding a role, a permission set
// and a target object, with access inheritance across the object graph.
//
// # Model
//
// A Permission is a namespaced capability ("documents.edit"). A Role is a
// named holder of grants; users hold roles through group membership. An
// AccessGrant binds a role to a permission set on one object, identified by
// a typed reference (ObjectRef). At most one grant exists per
// (target, role) pair.
//
// Types are declared in a Registry at startup: where their rows live, which
// permissions apply to them, which relation (if any) their access checks
// inherit through, and which types are proxies of another. A child type
// declaring inheritance falls back to its parent's grants, recursively, so
// granting "documents.view" on a cabinet reaches every folder and document
// under it without per-object rows.
//
// # Checking access
//
//	registry := acl.NewRegistry()
//	registry.RegisterType("folder", acl.TypeInfo{Table: "folders", IDColumn: "id"})
//	registry.RegisterType("document", acl.TypeInfo{Table: "documents", IDColumn: "id"})
//	registry.RegisterInheritance("document", acl.Relation{Parent: "folder", Column: "folder_id"})
//
//	manager, _ := acl.NewManager(db, registry, logger, acl.DefaultConfig())
//	err := manager.CheckAccess(ctx, []acl.Permission{{Namespace: "documents", Name: "view"}},
//		principal, acl.ObjectRef{Type: "document", ID: 42})
//
// CheckAccess returns nil or ErrAccessDenied. Restrict filters a whole
// queryset with the same semantics in a constant number of queries per
// inheritance level:
//
//	visible, err := manager.Restrict(ctx, perm, principal, manager.Objects("document"))
//
// The two entry points are set-equivalent by contract: an object survives
// Restrict exactly when CheckAccess grants it.
//
// # Mutation
//
// Store.Grant and Store.Revoke mutate the permission set of a (target,
// role) grant inside one transaction each; a unique index resolves
// concurrent creates. Mutations emit audit events (created, edited,
// revoked) and notify observers, which the optional check caches use for
// invalidation.
package acl
