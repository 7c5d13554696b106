// Package authz implements the Authorization Engine (C4): the authorize decision procedure,
// resource-pattern matching, grant-condition evaluation, and a short-lived decision cache.
package authz

import (
	"context"
	"sync"
	"time"

	"toolplane/internal/authz/domain"
)

// Decision is the outcome of authorize: either Allow, or Deny with a stable reason code.
type Decision struct {
	Allowed bool
	Reason  string
}

// Deny reason codes, per spec.md §4.4.
const (
	ReasonUnknownTool     = "unknown_tool"
	ReasonUnauthenticated = "unauthenticated"
	ReasonRoleInsufficient = "role_insufficient"
	ReasonResourceForbidden = "resource_forbidden"
)

func allow() Decision          { return Decision{Allowed: true} }
func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Principal is the subset of an authenticated caller's identity the engine needs. A zero-value
// Principal (empty UserID) represents an anonymous caller.
type Principal struct {
	UserID string
	Roles  []string
}

func (p Principal) anonymous() bool { return p.UserID == "" }

func (p Principal) hasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (p Principal) hasAnyRole(roles []string) bool {
	for _, r := range roles {
		if p.hasRole(r) {
			return true
		}
	}
	return false
}

// GrantRepository is the subset of grant persistence the engine needs.
type GrantRepository interface {
	GrantsFor(ctx context.Context, userID string, roles []string, resourceType domain.ResourceType) ([]*domain.Grant, error)
}

// ResourceResolver derives the concrete, dot-segmented resource name from a tool's arguments.
// Tools with no argument-derived resource should resolve to "*".
type ResourceResolver func(toolName string, arguments map[string]interface{}) string

// Engine implements the authorize decision procedure.
type Engine struct {
	bindings     map[string]domain.ToolBinding
	grants       GrantRepository
	cond         *ConditionEvaluator
	resolve      ResourceResolver
	cache        *decisionCache
	invalidation InvalidationStore
}

// NewEngine returns an Engine. cacheTTL of zero disables decision caching.
func NewEngine(bindings map[string]domain.ToolBinding, grants GrantRepository, cond *ConditionEvaluator, resolve ResourceResolver, cacheTTL time.Duration) *Engine {
	return &Engine{
		bindings: bindings,
		grants:   grants,
		cond:     cond,
		resolve:  resolve,
		cache:    newDecisionCache(cacheTTL),
	}
}

// WithInvalidation attaches the shared KVStore the Admin Surface publishes cache-invalidation
// markers through, so a grant or role mutation in another process takes effect on this Engine's
// cached decisions before their TTL naturally expires. Without it, a revoked grant or role stays
// effective for up to cacheTTL after the admin mutation.
func (e *Engine) WithInvalidation(store InvalidationStore) *Engine {
	e.invalidation = store
	return e
}

// Authorize runs the authorize(principal, tool_name, arguments) decision procedure described in
// spec.md §4.4.
func (e *Engine) Authorize(ctx context.Context, principal Principal, toolName string, arguments map[string]interface{}) (Decision, error) {
	binding, ok := e.bindings[toolName]
	if !ok {
		return deny(ReasonUnknownTool), nil
	}
	if binding.Public {
		return allow(), nil
	}
	if principal.anonymous() {
		return deny(ReasonUnauthenticated), nil
	}
	if len(binding.MinimumRoles) > 0 && !principal.hasAnyRole(binding.MinimumRoles) {
		return deny(ReasonRoleInsufficient), nil
	}
	if principal.hasRole(domain.RoleAdmin) {
		return allow(), nil
	}

	resource := "*"
	if e.resolve != nil {
		if r := e.resolve(toolName, arguments); r != "" {
			resource = r
		}
	}

	cacheKey := decisionCacheKey{principalID: principal.UserID, toolName: toolName, resource: resource}
	if d, cachedAt, ok := e.cache.get(cacheKey); ok {
		if !e.staleSince(ctx, principal.UserID, cachedAt) {
			return d, nil
		}
		e.cache.invalidatePrincipal(principal.UserID)
	}

	grants, err := e.grants.GrantsFor(ctx, principal.UserID, principal.Roles, binding.ResourceType)
	if err != nil {
		return Decision{}, err
	}

	now := time.Now().UTC()
	matched := false
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		if !g.HasAction(binding.Action) {
			continue
		}
		pattern, err := CompilePattern(g.ResourcePattern)
		if err != nil {
			continue
		}
		if !pattern.Match(resource) {
			continue
		}
		ok, err := e.cond.Evaluate(ctx, g.Conditions, Input{
			Principal: map[string]interface{}{"user_id": principal.UserID, "roles": principal.Roles},
			Resource:  map[string]interface{}{"name": resource, "type": string(binding.ResourceType)},
			Arguments: arguments,
		})
		if err != nil || !ok {
			continue
		}
		matched = true
		break
	}

	decision := deny(ReasonResourceForbidden)
	if matched {
		decision = allow()
	}
	e.cache.set(cacheKey, decision)
	return decision, nil
}

// InvalidatePrincipal clears every cached decision for principalID. Called on any grant or role
// change affecting that principal (spec.md §4.4 caching clause).
func (e *Engine) InvalidatePrincipal(principalID string) {
	e.cache.invalidatePrincipal(principalID)
}

// staleSince reports whether a cache-invalidation marker for principalID (or the global marker,
// which a role-subject grant mutation publishes since it can affect any number of principals) was
// published after cachedAt.
func (e *Engine) staleSince(ctx context.Context, principalID string, cachedAt time.Time) bool {
	if e.invalidation == nil {
		return false
	}
	if t, ok := markerTime(ctx, e.invalidation, invalidationGlobalKey); ok && t.After(cachedAt) {
		return true
	}
	if principalID == "" {
		return false
	}
	t, ok := markerTime(ctx, e.invalidation, invalidationUserPrefix+principalID)
	return ok && t.After(cachedAt)
}

type decisionCacheKey struct {
	principalID string
	toolName    string
	resource    string
}

type decisionCacheEntry struct {
	decision  Decision
	cachedAt  time.Time
	expiresAt time.Time
}

// decisionCache is a short-lived, TTL-bounded cache of authorize decisions keyed by
// (principal_id, tool_name, resource_name), with synchronous invalidation per principal.
type decisionCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[decisionCacheKey]decisionCacheEntry
	byUser  map[string]map[decisionCacheKey]struct{}
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{
		ttl:     ttl,
		entries: make(map[decisionCacheKey]decisionCacheEntry),
		byUser:  make(map[string]map[decisionCacheKey]struct{}),
	}
}

func (c *decisionCache) get(key decisionCacheKey) (Decision, time.Time, bool) {
	if c.ttl <= 0 {
		return Decision{}, time.Time{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().UTC().After(entry.expiresAt) {
		return Decision{}, time.Time{}, false
	}
	return entry.decision, entry.cachedAt, true
}

func (c *decisionCache) set(key decisionCacheKey, decision Decision) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	c.entries[key] = decisionCacheEntry{decision: decision, cachedAt: now, expiresAt: now.Add(c.ttl)}
	if c.byUser[key.principalID] == nil {
		c.byUser[key.principalID] = make(map[decisionCacheKey]struct{})
	}
	c.byUser[key.principalID][key] = struct{}{}
}

func (c *decisionCache) invalidatePrincipal(principalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byUser[principalID] {
		delete(c.entries, key)
	}
	delete(c.byUser, principalID)
}
