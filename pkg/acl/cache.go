package acl

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CheckCache caches CheckAccess outcomes. Implementations must be safe for
// concurrent use and must implement GrantObserver so the store can
// invalidate entries for a mutated target.
type CheckCache interface {
	GrantObserver

	// Get returns a cached outcome for the key, and whether one was found.
	Get(ctx context.Context, key string) (allowed bool, ok bool)

	// Set records an outcome. target is the canonical object the key was
	// computed for; implementations index by it for invalidation.
	Set(ctx context.Context, target ObjectRef, key string, allowed bool)
}

// checkKey builds a deterministic cache key for a check. obj must already
// be canonical. The key is prefixed with the target so invalidation can
// match every entry for an object regardless of roles or permissions.
func checkKey(obj ObjectRef, roleIDs []int64, perms []Permission) string {
	var b strings.Builder
	b.WriteString(targetKeyPrefix(obj))

	sorted := append([]int64{}, roleIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, id := range sorted {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}

	b.WriteString("|")
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.String()
	}
	sort.Strings(names)
	b.WriteString(strings.Join(names, ","))

	return b.String()
}

// targetKeyPrefix is the invalidation prefix shared by every check key for
// an object.
func targetKeyPrefix(obj ObjectRef) string {
	return typeKeyPrefix(obj.Type) + strconv.FormatInt(obj.ID, 10) + "|"
}

// typeKeyPrefix is the invalidation prefix shared by every check key for
// objects of a type.
func typeKeyPrefix(id TypeID) string {
	return "aclcheck:" + string(id) + ":"
}

// invalidationPrefixes returns the prefixes a grant mutation on target can
// stale: the target's own entries, plus every entry for types that inherit
// access through the target's type. Which descendants sit under the
// mutated object is unknown without walking the graph, so all entries of a
// descendant type go.
func invalidationPrefixes(registry *Registry, target ObjectRef) []string {
	prefixes := []string{targetKeyPrefix(target)}
	if registry != nil {
		for _, id := range registry.DescendantTypes(target.Type) {
			prefixes = append(prefixes, typeKeyPrefix(id))
		}
	}
	return prefixes
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

type lruEntry struct {
	allowed   bool
	expiresAt time.Time
}

// LRUCheckCache is an in-process CheckCache over a bounded LRU with a TTL.
type LRUCheckCache struct {
	registry *Registry
	entries  *lru.Cache[string, lruEntry]
	ttl      time.Duration
}

// NewLRUCheckCache creates an in-process check cache holding up to size
// entries for at most ttl each. The registry drives invalidation: a grant
// mutation drops entries for the target and for every type inheriting
// through the target's type.
func NewLRUCheckCache(registry *Registry, size int, ttl time.Duration) (*LRUCheckCache, error) {
	entries, err := lru.New[string, lruEntry](size)
	if err != nil {
		return nil, err
	}
	return &LRUCheckCache{registry: registry, entries: entries, ttl: ttl}, nil
}

func (c *LRUCheckCache) Get(ctx context.Context, key string) (bool, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expiresAt) {
		c.entries.Remove(key)
		return false, false
	}
	return entry.allowed, true
}

func (c *LRUCheckCache) Set(ctx context.Context, target ObjectRef, key string, allowed bool) {
	c.entries.Add(key, lruEntry{allowed: allowed, expiresAt: time.Now().Add(c.ttl)})
}

// GrantChanged drops every cached outcome the mutation can have staled:
// the target's entries and those of all descendant types.
func (c *LRUCheckCache) GrantChanged(ctx context.Context, target ObjectRef) {
	prefixes := invalidationPrefixes(c.registry, target)
	for _, key := range c.entries.Keys() {
		if hasAnyPrefix(key, prefixes) {
			c.entries.Remove(key)
		}
	}
}
