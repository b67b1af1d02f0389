// Package discovery implements spec §4.7: agent identity lookups backed by
// a local known-agents seed map and a TTL cache, invalidated on capability
// advertisement.
package discovery

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/agentcore/platform/pkg/a2a"
	"github.com/agentcore/platform/pkg/agenterrors"
)

// QueryKind is one of spec §4.7's lookup kinds.
type QueryKind string

const (
	QueryByID         QueryKind = "ById"
	QueryByName       QueryKind = "ByName"
	QueryByType       QueryKind = "ByType"
	QueryByCapability QueryKind = "ByCapability"
	QueryAll          QueryKind = "All"
)

// Query is one discovery lookup request.
type Query struct {
	Kind  QueryKind
	Value string // id, name, type, or capability token; ignored for All
}

// DefaultCacheTTL is spec §4.7's default cache TTL.
const DefaultCacheTTL = 60 * time.Second

// RemoteLookup is satisfied by anything that can resolve a query against an
// external registry service (spec §4.7's "registry service reachable at a
// configured endpoint"). This module ships no implementation of it; tests
// stub it directly.
type RemoteLookup interface {
	Query(ctx context.Context, q Query) ([]a2a.Identity, error)
}

// Directory resolves AgentIdentity values from a static known-agents seed,
// a remote registry, and a TTL cache. The seed and the cache are guarded by
// one sync.RWMutex: lookups take the read lock and Advertise and cache
// writes take the write lock, so a write waits for lookups in progress and
// lookups wait for a write. The lock is not held across a remote query.
type Directory struct {
	mu     sync.RWMutex
	known  map[string]a2a.Identity // seeded at startup, keyed by id
	cache  *lru.LRU[string, []a2a.Identity]
	remote RemoteLookup
}

// New builds a Directory seeded with known and backed by an optional
// remote registry (nil disables remote fan-out; only the local seed and
// anything previously advertised is visible).
func New(known map[string]a2a.Identity, remote RemoteLookup, ttl time.Duration) *Directory {
	seed := make(map[string]a2a.Identity, len(known))
	for k, v := range known {
		seed[k] = v
	}
	return &Directory{
		known:  seed,
		cache:  lru.NewLRU[string, []a2a.Identity](1024, nil, ttl),
		remote: remote,
	}
}

func cacheKey(q Query) string {
	return string(q.Kind) + ":" + q.Value
}

// Resolve answers q from the cache, or by merging the local known-agents
// seed with a remote registry lookup (spec §4.7's local seed is not
// replaced by the registry: a statically seeded agent stays resolvable
// even if the registry is unreachable or does not carry it). A remote
// error is only fatal when the local seed alone matched nothing.
func (d *Directory) Resolve(ctx context.Context, q Query) ([]a2a.Identity, error) {
	key := cacheKey(q)

	if cached, ok := d.cacheGet(key); ok {
		return cached, nil
	}

	local := d.matchLocal(q)

	if d.remote == nil {
		if len(local) == 0 {
			return nil, agenterrors.New(agenterrors.KindTargetUnknown, "no agent matched discovery query", map[string]any{"kind": q.Kind, "value": q.Value})
		}
		d.cachePut(key, local)
		return local, nil
	}

	remote, err := d.remote.Query(ctx, q)
	if err != nil {
		if len(local) == 0 {
			return nil, err
		}
		remote = nil
	}

	merged := mergeIdentities(local, remote)
	if len(merged) == 0 {
		return nil, agenterrors.New(agenterrors.KindTargetUnknown, "no agent matched discovery query", map[string]any{"kind": q.Kind, "value": q.Value})
	}
	d.cachePut(key, merged)
	return merged, nil
}

// mergeIdentities unions local and remote by ID, local winning on conflict
// since it reflects this agent's own seed/advertisements.
func mergeIdentities(local, remote []a2a.Identity) []a2a.Identity {
	byID := make(map[string]a2a.Identity, len(local)+len(remote))
	var order []string
	for _, id := range remote {
		if _, ok := byID[id.ID]; !ok {
			order = append(order, id.ID)
		}
		byID[id.ID] = id
	}
	for _, id := range local {
		if _, ok := byID[id.ID]; !ok {
			order = append(order, id.ID)
		}
		byID[id.ID] = id
	}
	out := make([]a2a.Identity, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

func (d *Directory) cacheGet(key string) ([]a2a.Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cache.Get(key)
}

func (d *Directory) cachePut(key string, identities []a2a.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Add(key, identities)
}

func (d *Directory) matchLocal(q Query) []a2a.Identity {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []a2a.Identity
	for _, id := range d.known {
		if matches(id, q) {
			out = append(out, id)
		}
	}
	return out
}

func matches(id a2a.Identity, q Query) bool {
	switch q.Kind {
	case QueryByID:
		return id.ID == q.Value
	case QueryByName:
		return id.Name == q.Value
	case QueryByType:
		return id.Type == q.Value
	case QueryByCapability:
		for _, c := range id.Capabilities {
			if c == q.Value {
				return true
			}
		}
		return false
	case QueryAll:
		return true
	default:
		return false
	}
}

// Advertise records/updates id in the known-agents set and invalidates
// every cached result, so the next lookup observes the change (spec §4.7
// "invalidated on receipt of a capability advertisement").
func (d *Directory) Advertise(id a2a.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.known[id.ID] = id
	d.cache.Purge()
}

// Self wraps the local agent's own identity; Directory does not use it.
type Self struct {
	identity a2a.Identity
}

// NewSelf wraps the local agent's own identity for advertisement.
func NewSelf(identity a2a.Identity) *Self { return &Self{identity: identity} }

// Identity returns the wrapped AgentIdentity.
func (s *Self) Identity() a2a.Identity { return s.identity }
