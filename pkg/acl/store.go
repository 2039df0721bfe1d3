package acl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paperbase/paperbase/pkg/audit"
	"github.com/paperbase/paperbase/pkg/observability"
)

// GrantObserver is notified after a committed mutation of the grants for a
// target object. The cache layer uses this to invalidate stale check
// results.
type GrantObserver interface {
	GrantChanged(ctx context.Context, target ObjectRef)
}

// Store persists roles, group membership and access grants. All mutating
// operations run in a single transaction; the unique index on
// (target_type, target_id, role_id) is the sole concurrency-critical
// invariant and insert races are resolved by refetching.
type Store struct {
	db        *sql.DB
	registry  *Registry
	auditLog  audit.Logger
	metrics   *observability.Metrics
	observers []GrantObserver
}

// NewStore creates a new grant store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, auditLog: audit.NewNopLogger()}
}

// SetRegistry installs the type registry so targets are canonicalized at
// the store boundary: a grant written through a proxy ref lands on the
// canonical type the resolver reads.
func (s *Store) SetRegistry(r *Registry) {
	s.registry = r
}

func (s *Store) canonicalRef(target ObjectRef) ObjectRef {
	if s.registry != nil {
		return s.registry.CanonicalRef(target)
	}
	return target
}

func (s *Store) canonicalType(id TypeID) TypeID {
	if s.registry != nil {
		return s.registry.Canonical(id)
	}
	return id
}

// SetAuditLogger sets the logger grant mutations are reported to.
func (s *Store) SetAuditLogger(l audit.Logger) {
	if l == nil {
		l = audit.NewNopLogger()
	}
	s.auditLog = l
}

// SetMetrics sets the metrics collector for grant mutations.
func (s *Store) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// AddObserver registers an observer for grant mutations.
func (s *Store) AddObserver(o GrantObserver) {
	s.observers = append(s.observers, o)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// placeholders renders "$start, $start+1, ..." for n values.
func placeholders(start, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("$")
		b.WriteString(strconv.Itoa(start + i))
	}
	return b.String()
}

// CreateRole creates a new role.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	query := `
		INSERT INTO roles (name, label, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query, role.Name, role.Label, now, now).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	query := `
		SELECT id, name, label, created_at, updated_at
		FROM roles
		WHERE id = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, roleID).Scan(
		&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// GetRoleByName retrieves a role by name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `
		SELECT id, name, label, created_at, updated_at
		FROM roles
		WHERE name = $1
	`

	var role Role
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return &role, nil
}

// ListRoles lists all roles ordered by name.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `
		SELECT id, name, label, created_at, updated_at
		FROM roles
		ORDER BY name ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Label, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	return roles, rows.Err()
}

// DeleteRole deletes a role and, through cascade, its grants and group
// bindings.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// AddRoleGroup binds a user group to a role. Members of the group hold the
// role. Re-adding an existing binding is a no-op.
func (s *Store) AddRoleGroup(ctx context.Context, roleID int64, group string) error {
	query := `
		SELECT 1 FROM role_groups WHERE role_id = $1 AND group_name = $2
	`
	var one int
	err := s.db.QueryRowContext(ctx, query, roleID, group).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check role group: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO role_groups (role_id, group_name) VALUES ($1, $2)`,
		roleID, group,
	)
	if err != nil {
		return fmt.Errorf("failed to add role group: %w", err)
	}
	return nil
}

// RemoveRoleGroup removes a group binding from a role.
func (s *Store) RemoveRoleGroup(ctx context.Context, roleID int64, group string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_groups WHERE role_id = $1 AND group_name = $2`,
		roleID, group,
	)
	if err != nil {
		return fmt.Errorf("failed to remove role group: %w", err)
	}
	return nil
}

// RolesForGroups returns the ids of all roles held through any of the given
// groups.
func (s *Store) RolesForGroups(ctx context.Context, groups []string) ([]int64, error) {
	if len(groups) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT role_id
		FROM role_groups
		WHERE group_name IN (%s)
		ORDER BY role_id
	`, placeholders(1, len(groups)))

	args := make([]interface{}, len(groups))
	for i, g := range groups {
		args[i] = g
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles for groups: %w", err)
	}
	defer rows.Close()

	var roleIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan role id: %w", err)
		}
		roleIDs = append(roleIDs, id)
	}

	return roleIDs, rows.Err()
}

// Grant get-or-creates the (target, role) grant row and adds the given
// permissions to its set. Granting an already-held permission is a no-op on
// the set; a grant call that changes nothing suppresses the edited audit
// event. Concurrent calls on the same (target, role) pair resolve through
// the unique index: the losing insert refetches instead of failing.
func (s *Store) Grant(ctx context.Context, target ObjectRef, roleID int64, perms ...Permission) (*AccessGrant, error) {
	target = s.canonicalRef(target)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	created := false
	grant, err := s.getGrant(ctx, tx, target, roleID)
	if errors.Is(err, ErrNotFound) {
		grant, err = s.insertGrant(ctx, tx, target, roleID)
		if errors.Is(err, sql.ErrNoRows) {
			// Unique-constraint race: another transaction created the row
			// first. Refetch rather than failing the caller.
			grant, err = s.getGrant(ctx, tx, target, roleID)
			if err != nil {
				return nil, err
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to create grant: %w", err)
		} else {
			created = true
		}
	} else if err != nil {
		return nil, err
	}

	var added []Permission
	for _, p := range perms {
		if grant.HasPermission(p) {
			continue
		}
		// DO NOTHING absorbs the race where a concurrent grant added the
		// same permission after our read; the union outcome is identical.
		_, err := tx.ExecContext(ctx,
			`INSERT INTO access_grant_permissions (grant_id, namespace, name)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (grant_id, namespace, name) DO NOTHING`,
			grant.ID, p.Namespace, p.Name,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add permission %s: %w", p, err)
		}
		grant.Permissions = append(grant.Permissions, p)
		added = append(added, p)
	}

	if len(added) > 0 && !created {
		grant.UpdatedAt = time.Now()
		_, err := tx.ExecContext(ctx,
			`UPDATE access_grants SET updated_at = $1 WHERE id = $2`,
			grant.UpdatedAt, grant.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to touch grant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit grant: %w", err)
	}

	switch {
	case created:
		s.emitGrantEvent(ctx, audit.EventTypeGrantCreated, grant, added)
	case len(added) > 0:
		s.emitGrantEvent(ctx, audit.EventTypeGrantEdited, grant, added)
	}
	if created || len(added) > 0 {
		s.countMutation("grant")
		s.notifyChanged(ctx, target)
	}

	return grant, nil
}

// Revoke removes permissions from the (target, role) grant. Removing a
// permission the role does not hold, or revoking against an absent grant
// row, is a silent no-op. The grant row itself stays even when its
// permission set becomes empty.
func (s *Store) Revoke(ctx context.Context, target ObjectRef, roleID int64, perms ...Permission) error {
	target = s.canonicalRef(target)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	grant, err := s.getGrant(ctx, tx, target, roleID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var removed []Permission
	for _, p := range perms {
		if !grant.HasPermission(p) {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM access_grant_permissions WHERE grant_id = $1 AND namespace = $2 AND name = $3`,
			grant.ID, p.Namespace, p.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to remove permission %s: %w", p, err)
		}
		removed = append(removed, p)
	}

	if len(removed) == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE access_grants SET updated_at = $1 WHERE id = $2`,
		time.Now(), grant.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to touch grant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revoke: %w", err)
	}

	s.emitGrantEvent(ctx, audit.EventTypeGrantRevoked, grant, removed)
	s.countMutation("revoke")
	s.notifyChanged(ctx, target)
	return nil
}

// GetGrant retrieves the grant for (target, role), or ErrNotFound.
func (s *Store) GetGrant(ctx context.Context, target ObjectRef, roleID int64) (*AccessGrant, error) {
	return s.getGrant(ctx, s.db, s.canonicalRef(target), roleID)
}

func (s *Store) getGrant(ctx context.Context, q querier, target ObjectRef, roleID int64) (*AccessGrant, error) {
	query := `
		SELECT id, created_at, updated_at
		FROM access_grants
		WHERE target_type = $1 AND target_id = $2 AND role_id = $3
	`

	grant := &AccessGrant{Target: target, RoleID: roleID}
	err := q.QueryRowContext(ctx, query, string(target.Type), target.ID, roleID).Scan(
		&grant.ID, &grant.CreatedAt, &grant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("grant for %s role %d: %w", target, roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}

	grant.Permissions, err = s.grantPermissions(ctx, q, grant.ID)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *Store) insertGrant(ctx context.Context, q querier, target ObjectRef, roleID int64) (*AccessGrant, error) {
	query := `
		INSERT INTO access_grants (target_type, target_id, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (target_type, target_id, role_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	grant := &AccessGrant{Target: target, RoleID: roleID, CreatedAt: now, UpdatedAt: now}
	err := q.QueryRowContext(ctx, query, string(target.Type), target.ID, roleID, now, now).Scan(&grant.ID)
	if err != nil {
		return nil, err
	}
	return grant, nil
}

func (s *Store) grantPermissions(ctx context.Context, q querier, grantID int64) ([]Permission, error) {
	query := `
		SELECT namespace, name
		FROM access_grant_permissions
		WHERE grant_id = $1
		ORDER BY namespace, name
	`

	rows, err := q.QueryContext(ctx, query, grantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get grant permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Namespace, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}

	return perms, rows.Err()
}

// GrantsFor enumerates all grants on a target object.
func (s *Store) GrantsFor(ctx context.Context, target ObjectRef) ([]AccessGrant, error) {
	target = s.canonicalRef(target)

	query := `
		SELECT id, role_id, created_at, updated_at
		FROM access_grants
		WHERE target_type = $1 AND target_id = $2
		ORDER BY role_id
	`

	rows, err := s.db.QueryContext(ctx, query, string(target.Type), target.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	var grants []AccessGrant
	for rows.Next() {
		g := AccessGrant{Target: target}
		if err := rows.Scan(&g.ID, &g.RoleID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range grants {
		grants[i].Permissions, err = s.grantPermissions(ctx, s.db, grants[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return grants, nil
}

// DeleteForTarget removes every grant on a target object. Called by the
// owner of the target when the object itself is deleted.
func (s *Store) DeleteForTarget(ctx context.Context, target ObjectRef) error {
	target = s.canonicalRef(target)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM access_grant_permissions
		WHERE grant_id IN (
			SELECT id FROM access_grants WHERE target_type = $1 AND target_id = $2
		)`,
		string(target.Type), target.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete grant permissions: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM access_grants WHERE target_type = $1 AND target_id = $2`,
		string(target.Type), target.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete grants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	s.countMutation("delete_target")
	s.notifyChanged(ctx, target)
	return nil
}

// HasGrant reports whether any of the roles holds any of the permissions
// directly on the target. Single query.
func (s *Store) HasGrant(ctx context.Context, target ObjectRef, roleIDs []int64, perms []Permission) (bool, error) {
	if len(roleIDs) == 0 || len(perms) == 0 {
		return false, nil
	}
	target = s.canonicalRef(target)

	var b strings.Builder
	args := []interface{}{string(target.Type), target.ID}

	b.WriteString(`
		SELECT 1
		FROM access_grants g
		JOIN access_grant_permissions p ON p.grant_id = g.id
		WHERE g.target_type = $1 AND g.target_id = $2
	`)

	b.WriteString(" AND g.role_id IN (")
	b.WriteString(placeholders(len(args)+1, len(roleIDs)))
	b.WriteString(")")
	for _, id := range roleIDs {
		args = append(args, id)
	}

	b.WriteString(" AND (")
	for i, p := range perms {
		if i > 0 {
			b.WriteString(" OR ")
		}
		fmt.Fprintf(&b, "(p.namespace = $%d AND p.name = $%d)", len(args)+1, len(args)+2)
		args = append(args, p.Namespace, p.Name)
	}
	b.WriteString(") LIMIT 1")

	var one int
	err := s.db.QueryRowContext(ctx, b.String(), args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check grant: %w", err)
	}
	return true, nil
}

// GrantedIDs returns the subset of ids of the given type that carry a grant
// of perm to any of the roles. Single query; the bulk half of the
// resolution engine.
func (s *Store) GrantedIDs(ctx context.Context, typeID TypeID, ids []int64, roleIDs []int64, perm Permission) ([]int64, error) {
	if len(ids) == 0 || len(roleIDs) == 0 {
		return nil, nil
	}
	typeID = s.canonicalType(typeID)

	var b strings.Builder
	args := []interface{}{string(typeID), perm.Namespace, perm.Name}

	b.WriteString(`
		SELECT DISTINCT g.target_id
		FROM access_grants g
		JOIN access_grant_permissions p ON p.grant_id = g.id
		WHERE g.target_type = $1 AND p.namespace = $2 AND p.name = $3
	`)

	b.WriteString(" AND g.role_id IN (")
	b.WriteString(placeholders(len(args)+1, len(roleIDs)))
	b.WriteString(")")
	for _, id := range roleIDs {
		args = append(args, id)
	}

	b.WriteString(" AND g.target_id IN (")
	b.WriteString(placeholders(len(args)+1, len(ids)))
	b.WriteString(")")
	for _, id := range ids {
		args = append(args, id)
	}

	b.WriteString(" ORDER BY g.target_id")

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query granted ids: %w", err)
	}
	defer rows.Close()

	var granted []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan granted id: %w", err)
		}
		granted = append(granted, id)
	}

	return granted, rows.Err()
}

func (s *Store) emitGrantEvent(ctx context.Context, eventType audit.EventType, grant *AccessGrant, perms []Permission) {
	event := audit.NewEvent(eventType)
	event.TargetType = string(grant.Target.Type)
	event.TargetID = grant.Target.ID
	event.RoleID = grant.RoleID
	for _, p := range perms {
		event.Permissions = append(event.Permissions, p.String())
	}

	// Audit emission is best-effort; the mutation has already committed.
	if err := s.auditLog.Log(ctx, event); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("failed to log grant audit event")
	}
}

func (s *Store) notifyChanged(ctx context.Context, target ObjectRef) {
	for _, o := range s.observers {
		o.GrantChanged(ctx, target)
	}
}

func (s *Store) countMutation(op string) {
	if s.metrics != nil {
		s.metrics.GrantMutationsTotal.WithLabelValues(op).Inc()
	}
}
