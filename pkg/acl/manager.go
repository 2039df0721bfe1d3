package acl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/paperbase/paperbase/pkg/audit"
	"github.com/paperbase/paperbase/pkg/observability"
)

// Config holds engine configuration.
type Config struct {
	// CheckCacheTTL is how long CheckAccess outcomes stay cached. Zero
	// disables the cache.
	CheckCacheTTL time.Duration

	// CheckCacheSize bounds the in-process check cache.
	CheckCacheSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		CheckCacheTTL:  5 * time.Minute,
		CheckCacheSize: 4096,
	}
}

// Manager wires the registry, grant store, object graph and resolver into
// one unit the consuming process holds.
type Manager struct {
	registry *Registry
	store    *Store
	resolver *Resolver
	graph    *SQLGraph
	janitor  *Janitor
	config   Config
}

// NewManager assembles an engine over the given database and type
// registry.
func NewManager(db *sql.DB, registry *Registry, logger *observability.Logger, config Config) (*Manager, error) {
	store := NewStore(db)
	store.SetRegistry(registry)
	graph := NewSQLGraph(db, registry)
	resolver := NewResolver(registry, store, NewGroupRoleProvider(store), graph)

	if config.CheckCacheTTL > 0 {
		size := config.CheckCacheSize
		if size <= 0 {
			size = DefaultConfig().CheckCacheSize
		}
		cache, err := NewLRUCheckCache(registry, size, config.CheckCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to create check cache: %w", err)
		}
		resolver.SetCheckCache(cache)
		store.AddObserver(cache)
	}

	return &Manager{
		registry: registry,
		store:    store,
		resolver: resolver,
		graph:    graph,
		janitor:  NewJanitor(db, registry, logger),
		config:   config,
	}, nil
}

// Initialize runs the schema migrations.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := RunMigrations(ctx, m.store.db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SetAuditLogger routes grant mutation events to the given logger.
func (m *Manager) SetAuditLogger(l audit.Logger) {
	m.store.SetAuditLogger(l)
}

// SetMetrics installs a metrics collector across the engine.
func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.store.SetMetrics(metrics)
	m.resolver.SetMetrics(metrics)
	m.janitor.SetMetrics(metrics)
}

// Registry returns the type registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Store returns the grant store.
func (m *Manager) Store() *Store { return m.store }

// Resolver returns the resolution engine.
func (m *Manager) Resolver() *Resolver { return m.resolver }

// Janitor returns the orphan sweeper.
func (m *Manager) Janitor() *Janitor { return m.janitor }

// CheckAccess is a convenience pass-through to the resolver.
func (m *Manager) CheckAccess(ctx context.Context, perms []Permission, principal Principal, obj ObjectRef) error {
	return m.resolver.CheckAccess(ctx, perms, principal, obj)
}

// Restrict is a convenience pass-through to the resolver.
func (m *Manager) Restrict(ctx context.Context, perm Permission, principal Principal, set ObjectSet) (ObjectSet, error) {
	return m.resolver.Restrict(ctx, perm, principal, set)
}

// Objects returns a queryset over every row of a registered type.
func (m *Manager) Objects(typeID TypeID) *SQLObjectSet {
	return NewSQLObjectSet(m.store.db, m.registry, typeID)
}
