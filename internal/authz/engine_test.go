package authz

import (
	"context"
	"testing"
	"time"

	"toolplane/internal/authz/domain"
	"toolplane/internal/kv"
)

type fakeGrantRepo struct {
	grants []*domain.Grant
}

func (f *fakeGrantRepo) GrantsFor(ctx context.Context, userID string, roles []string, resourceType domain.ResourceType) ([]*domain.Grant, error) {
	var out []*domain.Grant
	for _, g := range f.grants {
		if g.ResourceType != resourceType {
			continue
		}
		if g.SubjectKind == domain.SubjectUser && g.Subject == userID {
			out = append(out, g)
			continue
		}
		if g.SubjectKind == domain.SubjectRole {
			for _, r := range roles {
				if g.Subject == r {
					out = append(out, g)
					break
				}
			}
		}
	}
	return out, nil
}

var testBindings = map[string]domain.ToolBinding{
	"search_web": {ToolName: "search_web", ResourceType: domain.ResourceWebSearch, Action: domain.ActionRead, MinimumRoles: []string{"user", "admin"}},
	"health_check": {ToolName: "health_check", Public: true},
	"query_database": {ToolName: "query_database", ResourceType: domain.ResourceDatabase, Action: domain.ActionRead, MinimumRoles: []string{"user", "admin"}},
}

func resolveTable(toolName string, arguments map[string]interface{}) string {
	if table, ok := arguments["table"].(string); ok {
		return "database." + table
	}
	return "*"
}

func TestEngine_PublicToolAllowsAnonymous(t *testing.T) {
	e := NewEngine(testBindings, &fakeGrantRepo{}, NewConditionEvaluator(), nil, 0)
	d, err := e.Authorize(context.Background(), Principal{}, "health_check", nil)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected public tool to be allowed, got deny(%s)", d.Reason)
	}
}

func TestEngine_UnknownTool(t *testing.T) {
	e := NewEngine(testBindings, &fakeGrantRepo{}, NewConditionEvaluator(), nil, 0)
	d, err := e.Authorize(context.Background(), Principal{UserID: "u1", Roles: []string{"user"}}, "no_such_tool", nil)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed || d.Reason != ReasonUnknownTool {
		t.Fatalf("expected deny(unknown_tool), got %+v", d)
	}
}

func TestEngine_AnonymousDenied(t *testing.T) {
	e := NewEngine(testBindings, &fakeGrantRepo{}, NewConditionEvaluator(), nil, 0)
	d, err := e.Authorize(context.Background(), Principal{}, "search_web", nil)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed || d.Reason != ReasonUnauthenticated {
		t.Fatalf("expected deny(unauthenticated), got %+v", d)
	}
}

func TestEngine_RoleInsufficient(t *testing.T) {
	e := NewEngine(testBindings, &fakeGrantRepo{}, NewConditionEvaluator(), nil, 0)
	d, err := e.Authorize(context.Background(), Principal{UserID: "u1", Roles: []string{"guest"}}, "search_web", nil)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed || d.Reason != ReasonRoleInsufficient {
		t.Fatalf("expected deny(role_insufficient), got %+v", d)
	}
}

func TestEngine_AdminAlwaysAllowed(t *testing.T) {
	e := NewEngine(testBindings, &fakeGrantRepo{}, NewConditionEvaluator(), nil, 0)
	d, err := e.Authorize(context.Background(), Principal{UserID: "u1", Roles: []string{"admin"}}, "query_database", map[string]interface{}{"table": "secrets"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected admin to be allowed unconditionally, got %+v", d)
	}
}

func TestEngine_GrantMatchAllowsAndMismatchDenies(t *testing.T) {
	repo := &fakeGrantRepo{grants: []*domain.Grant{
		{
			ID: "g1", SubjectKind: domain.SubjectRole, Subject: "user",
			ResourceType: domain.ResourceDatabase, ResourcePattern: "database.accounts",
			Actions: []domain.Action{domain.ActionRead}, GrantedAt: time.Now(),
		},
	}}
	e := NewEngine(testBindings, repo, NewConditionEvaluator(), resolveTable, 0)

	d, err := e.Authorize(context.Background(), Principal{UserID: "u1", Roles: []string{"user"}}, "query_database", map[string]interface{}{"table": "accounts"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected matching grant to allow, got %+v", d)
	}

	d, err = e.Authorize(context.Background(), Principal{UserID: "u1", Roles: []string{"user"}}, "query_database", map[string]interface{}{"table": "secrets"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed || d.Reason != ReasonResourceForbidden {
		t.Fatalf("expected deny(resource_forbidden) for non-matching resource, got %+v", d)
	}
}

func TestEngine_ExpiredGrantYieldsNoRights(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	repo := &fakeGrantRepo{grants: []*domain.Grant{
		{
			ID: "g1", SubjectKind: domain.SubjectRole, Subject: "user",
			ResourceType: domain.ResourceDatabase, ResourcePattern: "database.*",
			Actions: []domain.Action{domain.ActionRead}, GrantedAt: time.Now().Add(-2 * time.Hour),
			ExpiresAt: &past,
		},
	}}
	e := NewEngine(testBindings, repo, NewConditionEvaluator(), resolveTable, 0)

	d, err := e.Authorize(context.Background(), Principal{UserID: "u1", Roles: []string{"user"}}, "query_database", map[string]interface{}{"table": "accounts"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected expired grant to yield no rights")
	}
}

func TestEngine_DecisionCacheAndInvalidate(t *testing.T) {
	repo := &fakeGrantRepo{grants: []*domain.Grant{
		{
			ID: "g1", SubjectKind: domain.SubjectRole, Subject: "user",
			ResourceType: domain.ResourceDatabase, ResourcePattern: "database.accounts",
			Actions: []domain.Action{domain.ActionRead}, GrantedAt: time.Now(),
		},
	}}
	e := NewEngine(testBindings, repo, NewConditionEvaluator(), resolveTable, time.Minute)
	principal := Principal{UserID: "u1", Roles: []string{"user"}}
	args := map[string]interface{}{"table": "accounts"}

	d1, err := e.Authorize(context.Background(), principal, "query_database", args)
	if err != nil || !d1.Allowed {
		t.Fatalf("expected first call to allow: %v %+v", err, d1)
	}

	// Remove the grant from the backing repo; a cached decision should still be returned.
	repo.grants = nil
	d2, err := e.Authorize(context.Background(), principal, "query_database", args)
	if err != nil || !d2.Allowed {
		t.Fatalf("expected cached decision to still allow: %v %+v", err, d2)
	}

	e.InvalidatePrincipal("u1")
	d3, err := e.Authorize(context.Background(), principal, "query_database", args)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d3.Allowed {
		t.Fatal("expected invalidated cache to re-evaluate and deny after grant removal")
	}
}

func TestEngine_WithInvalidationRejectsStaleCacheEntry(t *testing.T) {
	repo := &fakeGrantRepo{grants: []*domain.Grant{
		{
			ID: "g1", SubjectKind: domain.SubjectRole, Subject: "user",
			ResourceType: domain.ResourceDatabase, ResourcePattern: "database.accounts",
			Actions: []domain.Action{domain.ActionRead}, GrantedAt: time.Now(),
		},
	}}
	store := kv.NewInMemory()
	publisher := NewKVPublisher(store, time.Minute)
	e := NewEngine(testBindings, repo, NewConditionEvaluator(), resolveTable, time.Minute).WithInvalidation(store)
	principal := Principal{UserID: "u1", Roles: []string{"user"}}
	args := map[string]interface{}{"table": "accounts"}
	ctx := context.Background()

	d1, err := e.Authorize(ctx, principal, "query_database", args)
	if err != nil || !d1.Allowed {
		t.Fatalf("expected first call to allow: %v %+v", err, d1)
	}

	// A grant mutation in another process publishes an invalidation marker for u1 through the
	// same KVStore; the cached allow must not survive it even though the entry's own TTL hasn't
	// elapsed and the in-process cache was never told to evict directly.
	repo.grants = nil
	if err := publisher.InvalidateUser(ctx, "u1"); err != nil {
		t.Fatalf("InvalidateUser: %v", err)
	}

	d2, err := e.Authorize(ctx, principal, "query_database", args)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d2.Allowed {
		t.Fatal("expected a published invalidation marker to defeat the cached decision")
	}
}

func TestEngine_WithInvalidationGlobalMarkerAffectsEveryPrincipal(t *testing.T) {
	repo := &fakeGrantRepo{grants: []*domain.Grant{
		{
			ID: "g1", SubjectKind: domain.SubjectRole, Subject: "user",
			ResourceType: domain.ResourceDatabase, ResourcePattern: "database.accounts",
			Actions: []domain.Action{domain.ActionRead}, GrantedAt: time.Now(),
		},
	}}
	store := kv.NewInMemory()
	publisher := NewKVPublisher(store, time.Minute)
	e := NewEngine(testBindings, repo, NewConditionEvaluator(), resolveTable, time.Minute).WithInvalidation(store)
	principal := Principal{UserID: "u2", Roles: []string{"user"}}
	args := map[string]interface{}{"table": "accounts"}
	ctx := context.Background()

	if _, err := e.Authorize(ctx, principal, "query_database", args); err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	repo.grants = nil
	if err := publisher.InvalidateAll(ctx); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}

	d, err := e.Authorize(ctx, principal, "query_database", args)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected the global invalidation marker to defeat every principal's cached decision")
	}
}
